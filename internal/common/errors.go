// Package common defines shared constants, helpers and sentinel errors used
// across client and server layers of gophauth. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation failed")

	// ErrInvalidOrExpiredToken is returned for reset and refresh tokens that
	// are unknown, already used or past their TTL.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrStoreUnavailable wraps every key-value store failure. It never means
	// "not found".
	ErrStoreUnavailable = errors.New("store unavailable")

	// Token codec errors.
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")

	ErrDeliveryFailed = errors.New("notification delivery failed")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// FieldViolation describes a single invalid request field.
type FieldViolation struct {
	Field  string
	Reason string
}

// ValidationError aggregates every violation found in a request.
// errors.Is(err, ErrorValidation) reports true for it.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return ErrorValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrorValidation
}
