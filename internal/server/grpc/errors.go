package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
)

// ErrorDomain is reported in every errdetails.ErrorInfo.
const ErrorDomain = "auth"

// Machine-readable reasons attached to error statuses.
const (
	ReasonValidationFailed      = "VALIDATION_FAILED"
	ReasonAlreadyExists         = "ALREADY_EXISTS"
	ReasonUnauthorized          = "UNAUTHORIZED"
	ReasonInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	ReasonNotFound              = "NOT_FOUND"
	ReasonRateLimited           = "RATE_LIMITED"
	ReasonInternal              = "INTERNAL"
)

// toStatus translates a service error into a gRPC status. Domain errors get
// a fixed safe message; anything unrecognised is logged and becomes a bare
// Internal so store or crypto details never reach the caller.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	var verr *common.ValidationError

	switch {
	case errors.As(err, &verr):
		br := &errdetails.BadRequest{}
		for _, v := range verr.Violations {
			br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
				Field:       v.Field,
				Description: v.Reason,
			})
		}
		return newStatus(codes.InvalidArgument, verr.Error(), ReasonValidationFailed, br)

	case errors.Is(err, common.ErrorAlreadyExists):
		return newStatus(codes.AlreadyExists, "email already registered", ReasonAlreadyExists)

	case errors.Is(err, common.ErrorUnauthorized):
		return newStatus(codes.Unauthenticated, "invalid credentials", ReasonUnauthorized)

	case errors.Is(err, common.ErrInvalidOrExpiredToken):
		return newStatus(codes.InvalidArgument, "invalid or expired token", ReasonInvalidOrExpiredToken)

	case errors.Is(err, common.ErrorNotFound):
		return newStatus(codes.NotFound, "not found", ReasonNotFound)

	case errors.Is(err, common.ErrRateLimited):
		return newStatus(codes.ResourceExhausted, "too many requests, try again later", ReasonRateLimited)

	default:
		if !errors.Is(err, common.ErrorInternal) {
			s.logger.Error(ctx, "unexpected service error", "error", err)
		}
		return newStatus(codes.Internal, "internal error", ReasonInternal)
	}
}

func newStatus(c codes.Code, msg, reason string, extra ...protoadapt.MessageV1) error {
	st := status.New(c, msg)
	details := append([]protoadapt.MessageV1{&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain}}, extra...)
	if withDetails, err := st.WithDetails(details...); err == nil {
		return withDetails.Err()
	}
	return st.Err()
}
