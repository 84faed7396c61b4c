package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/redis/go-redis/v9"
)

// incrementScript increments KEYS[1] and sets its TTL (ms, ARGV[1]) only when
// the increment created the key. Running both in one script leaves no window
// in which a counter exists without a TTL.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// rotateScript replaces KEYS[1] with ARGV[2] (TTL ARGV[3] ms) only if it
// currently holds ARGV[1].
var rotateScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
  return 1
end
return 0
`)

const defaultDialTimeout = 5 * time.Second

// RedisConfig holds connection and pool settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Options turns the config into go-redis options. Zero values keep the
// go-redis defaults.
func (c RedisConfig) Options() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		opts.MinIdleConns = c.MinIdleConns
	}
	if c.PoolTimeout > 0 {
		opts.PoolTimeout = c.PoolTimeout
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	return opts, nil
}

// RedisStore is the go-redis implementation of Store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using cfg and pings the server within DialTimeout.
// The client is closed again if the ping fails.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping: %w", common.ErrStoreUnavailable, err)
	}

	return NewRedisStoreFromClient(client), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) PutRefreshToken(ctx context.Context, userID, token string, ttl time.Duration) error {
	return wrap(s.client.Set(ctx, refreshTokenKey(userID), token, ttl).Err())
}

func (s *RedisStore) RefreshToken(ctx context.Context, userID string) (string, error) {
	v, err := s.client.Get(ctx, refreshTokenKey(userID)).Result()
	if err != nil {
		return "", wrap(err)
	}
	return v, nil
}

func (s *RedisStore) RotateRefreshToken(ctx context.Context, userID, current, next string, ttl time.Duration) error {
	swapped, err := rotateScript.Run(ctx, s.client, []string{refreshTokenKey(userID)}, current, next, ttl.Milliseconds()).Int()
	if err != nil {
		return wrap(err)
	}
	if swapped == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (s *RedisStore) DeleteRefreshToken(ctx context.Context, userID string) error {
	return wrap(s.client.Del(ctx, refreshTokenKey(userID)).Err())
}

func (s *RedisStore) PutResetToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	return wrap(s.client.Set(ctx, resetTokenKey(token), userID, ttl).Err())
}

func (s *RedisStore) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, resetTokenKey(token)).Result()
	if err != nil {
		return "", wrap(err)
	}
	return userID, nil
}

func (s *RedisStore) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return wrap(s.client.Ping(ctx).Err())
}

// Stats reports connection pool usage.
func (s *RedisStore) Stats() *redis.PoolStats {
	return s.client.PoolStats()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// wrap maps redis.Nil to common.ErrorNotFound and everything else to
// common.ErrStoreUnavailable.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return common.ErrorNotFound
	default:
		return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
}
