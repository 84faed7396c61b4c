// Package health keeps the gRPC health status in line with the stores the
// service depends on.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultCheckTimeout = 3 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// StatusSetter is satisfied by *health.Server from grpc-go.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

type namedCheck struct {
	name  string
	check Check
}

type namedStats struct {
	name  string
	stats func() []any
}

// Watcher runs every check on an interval and flips the listed services to
// NOT_SERVING while any of them fails.
type Watcher struct {
	setter   StatusSetter
	services []string
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger

	checks []namedCheck
	stats  []namedStats

	mu      sync.Mutex
	healthy bool
}

// NewWatcher reports on services (the empty name is the overall server
// status). A non-positive interval disables periodic checks.
func NewWatcher(setter StatusSetter, l logging.Logger, interval time.Duration, services ...string) *Watcher {
	if len(services) == 0 {
		services = []string{""}
	}
	return &Watcher{
		setter:   setter,
		services: services,
		interval: interval,
		timeout:  defaultCheckTimeout,
		logger:   l.With("module", "health"),
		healthy:  true,
	}
}

func (w *Watcher) AddCheck(name string, c Check) {
	w.checks = append(w.checks, namedCheck{name: name, check: c})
}

// AddStats registers a source of key-value pairs logged at debug level after
// every round.
func (w *Watcher) AddStats(name string, fn func() []any) {
	w.stats = append(w.stats, namedStats{name: name, stats: fn})
}

// CheckOnce runs all checks, updates the serving status and reports whether
// every dependency answered.
func (w *Watcher) CheckOnce(ctx context.Context) bool {
	healthy := true
	for _, c := range w.checks {
		cctx, cancel := context.WithTimeout(ctx, w.timeout)
		err := c.check(cctx)
		cancel()
		if err != nil {
			healthy = false
			w.logger.Warn(ctx, "dependency check failed", "dependency", c.name, "error", err)
		}
	}

	w.setStatus(ctx, healthy)

	for _, s := range w.stats {
		w.logger.Debug(ctx, "pool stats", append([]any{"pool", s.name}, s.stats()...)...)
	}
	return healthy
}

func (w *Watcher) setStatus(ctx context.Context, healthy bool) {
	w.mu.Lock()
	changed := w.healthy != healthy
	w.healthy = healthy
	w.mu.Unlock()

	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	for _, svc := range w.services {
		w.setter.SetServingStatus(svc, status)
	}

	if changed {
		w.logger.Info(ctx, "serving status changed", "status", status.String())
	}
}

// Run checks immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.CheckOnce(ctx)
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CheckOnce(ctx)
		}
	}
}
