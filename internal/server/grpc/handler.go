package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Response messages. ForgotPassword answers the same way whether or not the
// email is registered.
const (
	msgSignedUp       = "user registered successfully"
	msgResetRequested = "if the email is registered, a password reset link has been sent"
	msgPasswordReset  = "password has been reset"
	msgTokenValid     = "token is valid"
	msgTokenInvalid   = "invalid or expired token"
)

func (s *GRPCServer) SignUp(ctx context.Context, req *pb.SignUpRequest) (*pb.SignUpResponse, error) {
	user, err := s.auth.SignUp(ctx, services.SignUpInput{
		Email:     req.GetEmail(),
		Password:  req.GetPassword(),
		FirstName: req.GetFirstName(),
		LastName:  req.GetLastName(),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &pb.SignUpResponse{Success: true, Message: msgSignedUp, User: toPBUser(user)}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.LoginResponse, error) {
	res, err := s.auth.Login(ctx, services.LoginInput{Email: req.GetEmail(), Password: req.GetPassword()})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &pb.LoginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		User:         toPBUser(res.User),
	}, nil
}

func (s *GRPCServer) ForgotPassword(ctx context.Context, req *pb.ForgotPasswordRequest) (*pb.ForgotPasswordResponse, error) {
	if err := s.auth.ForgotPassword(ctx, services.ForgotPasswordInput{Email: req.GetEmail()}); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &pb.ForgotPasswordResponse{Success: true, Message: msgResetRequested}, nil
}

func (s *GRPCServer) ResetPassword(ctx context.Context, req *pb.ResetPasswordRequest) (*pb.ResetPasswordResponse, error) {
	err := s.auth.ResetPassword(ctx, services.ResetPasswordInput{Token: req.GetToken(), NewPassword: req.GetNewPassword()})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &pb.ResetPasswordResponse{Success: true, Message: msgPasswordReset}, nil
}

// ValidateToken reports rejection in the response body rather than as an
// error status; only infrastructure failures become errors.
func (s *GRPCServer) ValidateToken(ctx context.Context, req *pb.ValidateTokenRequest) (*pb.ValidateTokenResponse, error) {
	user, err := s.auth.ValidateToken(ctx, req.GetAccessToken())
	if errors.Is(err, common.ErrorUnauthorized) {
		return &pb.ValidateTokenResponse{Valid: false, Message: msgTokenInvalid}, nil
	}
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &pb.ValidateTokenResponse{Valid: true, User: toPBUser(user), Message: msgTokenValid}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *pb.RefreshTokenRequest) (*pb.RefreshTokenResponse, error) {
	pair, err := s.auth.RefreshToken(ctx, services.RefreshTokenInput{RefreshToken: req.GetRefreshToken()})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &pb.RefreshTokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func (s *GRPCServer) Logout(ctx context.Context, _ *pb.LogoutRequest) (*pb.LogoutResponse, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if err := s.auth.Logout(ctx, userID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &pb.LogoutResponse{Success: true}, nil
}

func toPBUser(u *models.User) *pb.User {
	if u == nil {
		return nil
	}
	out := &pb.User{
		Id:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
	}
	if !u.CreatedAt.IsZero() {
		out.CreatedAt = u.CreatedAt.Unix()
	}
	if u.LastLoginAt != nil {
		out.LastLoginAt = u.LastLoginAt.Unix()
	}
	return out
}
