// Package sessions keeps the short-lived auth state in a key-value store:
// refresh tokens, single-use password reset tokens and rate-limit counters.
// Every entry carries a TTL; nothing here is durable.
package sessions

import (
	"context"
	"time"
)

// Store is the key-value contract used by the auth service and the rate
// limiter. Lookups that find nothing return common.ErrorNotFound; any
// transport or server failure returns an error matching
// common.ErrStoreUnavailable and must never be read as "not found".
type Store interface {
	// PutRefreshToken replaces the single active refresh token of userID.
	PutRefreshToken(ctx context.Context, userID, token string, ttl time.Duration) error
	RefreshToken(ctx context.Context, userID string) (string, error)
	// RotateRefreshToken swaps current for next only if current is still the
	// stored value; otherwise it returns common.ErrorNotFound.
	RotateRefreshToken(ctx context.Context, userID, current, next string, ttl time.Duration) error
	DeleteRefreshToken(ctx context.Context, userID string) error

	PutResetToken(ctx context.Context, token, userID string, ttl time.Duration) error
	// ConsumeResetToken resolves and deletes token in one step, so a second
	// call with the same token returns common.ErrorNotFound.
	ConsumeResetToken(ctx context.Context, token string) (string, error)

	// IncrementCounter atomically increments key and, on the increment that
	// creates it, sets its TTL to window.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
}

const (
	refreshTokenPrefix = "refresh_token:"
	resetTokenPrefix   = "reset_token:"
)

func refreshTokenKey(userID string) string { return refreshTokenPrefix + userID }
func resetTokenKey(token string) string    { return resetTokenPrefix + token }
