package client

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrUnavailable   = errors.New("server unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAlreadyExists = errors.New("email already registered")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrRateLimited   = errors.New("too many requests")
	ErrNotLoggedIn   = errors.New("not logged in")
)

// reasonInvalidOrExpiredToken matches the ErrorInfo reason the server sets for
// rejected reset and refresh tokens.
const reasonInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"

// RequestError is returned when the server rejects the request payload.
// Violations lists the offending fields as "field: reason".
type RequestError struct {
	Message    string
	Violations []string
}

func (e *RequestError) Error() string {
	if len(e.Violations) == 0 {
		return e.Message
	}
	return "invalid request: " + strings.Join(e.Violations, "; ")
}

// reasonOf returns the ErrorInfo reason attached to st, if any.
func reasonOf(st *status.Status) string {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.InvalidArgument:
		if reasonOf(st) == reasonInvalidOrExpiredToken {
			return ErrInvalidToken
		}
		re := &RequestError{Message: st.Message()}
		for _, d := range st.Details() {
			if br, ok := d.(*errdetails.BadRequest); ok {
				for _, v := range br.GetFieldViolations() {
					re.Violations = append(re.Violations, v.GetField()+": "+v.GetDescription())
				}
			}
		}
		return re
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
