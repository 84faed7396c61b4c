// Package grpc exposes AuthService over gRPC: request handlers, the error
// to status mapping and the unary interceptors for logging, rate limiting
// and access-token authentication.
package grpc

import (
	"context"
	"net"
	"net/netip"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AuthService is the business API the handlers call.
type AuthService interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*models.User, error)
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	ForgotPassword(ctx context.Context, in services.ForgotPasswordInput) error
	ResetPassword(ctx context.Context, in services.ResetPasswordInput) error
	ValidateToken(ctx context.Context, accessToken string) (*models.User, error)
	RefreshToken(ctx context.Context, in services.RefreshTokenInput) (*services.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	Authenticate(accessToken string) (string, error)
}

// RateLimiter decides whether one more call for key fits the policy.
type RateLimiter interface {
	AllowPolicy(ctx context.Context, key string, p ratelimit.Policy) (bool, error)
}

type GRPCServer struct {
	pb.UnimplementedAuthServiceServer
	address string
	auth    AuthService
	logger  logging.Logger

	limiter        RateLimiter
	policy         ratelimit.Policy
	trustedProxies []netip.Prefix

	health     *health.Server
	serverOpts []grpc.ServerOption
}

type Option func(*GRPCServer)

// WithRateLimiter limits the unauthenticated entry points per client.
func WithRateLimiter(l RateLimiter, p ratelimit.Policy) Option {
	return func(s *GRPCServer) {
		s.limiter = l
		s.policy = p
	}
}

// WithTrustedProxies makes the rate limiter key on x-forwarded-for when the
// transport peer falls in one of prefixes. Without it the header is ignored.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(s *GRPCServer) { s.trustedProxies = prefixes }
}

// WithHealth serves h as grpc.health.v1.Health. Without it a private
// health server is created.
func WithHealth(h *health.Server) Option {
	return func(s *GRPCServer) { s.health = h }
}

// WithServerOptions appends extra options, such as a stats handler, to the
// underlying grpc.Server.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(s *GRPCServer) { s.serverOpts = append(s.serverOpts, opts...) }
}

func NewGRPCServer(address string, l logging.Logger, a AuthService, opts ...Option) *GRPCServer {
	s := &GRPCServer{
		address: address,
		auth:    a,
		logger:  l.With("module", "grpc_server"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.NewServer()
	}
	return s
}

func (s *GRPCServer) newServer() *grpc.Server {
	opts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.rateLimitInterceptor, s.accessTokenInterceptor),
	}, s.serverOpts...)

	srv := grpc.NewServer(opts...)
	pb.RegisterAuthServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully: in-flight calls finish and health reports NOT_SERVING.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
