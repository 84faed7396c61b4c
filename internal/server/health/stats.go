package health

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
)

// RedisPoolStats flattens go-redis pool counters for logging.
func RedisPoolStats(s *redis.PoolStats) []any {
	if s == nil {
		return nil
	}
	return []any{
		"hits", s.Hits,
		"misses", s.Misses,
		"timeouts", s.Timeouts,
		"total_conns", s.TotalConns,
		"idle_conns", s.IdleConns,
		"stale_conns", s.StaleConns,
	}
}

// DBPoolStats flattens database/sql pool counters for logging.
func DBPoolStats(s sql.DBStats) []any {
	return []any{
		"open_conns", s.OpenConnections,
		"in_use", s.InUse,
		"idle", s.Idle,
		"wait_count", s.WaitCount,
		"wait_duration", s.WaitDuration,
	}
}
