// Package ratelimit implements fixed-window request counting on top of the
// session store's atomic counters.
//
// Windows are not smoothed: a burst straddling a window boundary can pass up
// to twice the limit within one window's length.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

const keyPrefix = "ratelimit:"

// Counter is the store primitive the limiter needs.
type Counter interface {
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Policy is a limit of Limit calls per Window.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

type Limiter struct {
	counter Counter
}

func New(c Counter) *Limiter {
	return &Limiter{counter: c}
}

// Allow counts one call for clientKey and reports whether the count within
// the current window is at most limit. Store failures are returned as errors
// and never treated as allowed or denied.
func (l *Limiter) Allow(ctx context.Context, clientKey string, limit int64, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, errors.New("limit and window must be positive")
	}

	n, err := l.counter.IncrementCounter(ctx, keyPrefix+clientKey, window)
	if err != nil {
		return false, err
	}
	return n <= limit, nil
}

// AllowPolicy is Allow with the values taken from p.
func (l *Limiter) AllowPolicy(ctx context.Context, clientKey string, p Policy) (bool, error) {
	return l.Allow(ctx, clientKey, p.Limit, p.Window)
}
