package grpc

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// UserIDFromContext returns the user id stored by the access-token
// interceptor.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// authenticatedMethods require a valid access token in metadata.
var authenticatedMethods = map[string]struct{}{
	pb.AuthService_Logout_FullMethodName: {},
}

// rateLimitedMethods are the unauthenticated entry points worth brute-forcing.
var rateLimitedMethods = map[string]struct{}{
	pb.AuthService_SignUp_FullMethodName:         {},
	pb.AuthService_Login_FullMethodName:          {},
	pb.AuthService_ForgotPassword_FullMethodName: {},
	pb.AuthService_ResetPassword_FullMethodName:  {},
	pb.AuthService_RefreshToken_FullMethodName:   {},
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
	if code == codes.Internal || code == codes.Unknown {
		s.logger.Warn(ctx, "rpc failed", args...)
	} else {
		s.logger.Info(ctx, "rpc", args...)
	}
	return resp, err
}

func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.limiter == nil || !s.policy.Enabled() {
		return handler(ctx, req)
	}
	if _, ok := rateLimitedMethods[info.FullMethod]; !ok {
		return handler(ctx, req)
	}

	key := info.FullMethod + ":" + s.clientIP(ctx)
	allowed, err := s.limiter.AllowPolicy(ctx, key, s.policy)
	if err != nil {
		s.logger.Error(ctx, "rate limiter failed", "error", err)
		return nil, s.toStatus(ctx, common.ErrorInternal)
	}
	if !allowed {
		s.logger.Warn(ctx, "rate limit exceeded", "key", key)
		return nil, s.toStatus(ctx, common.ErrRateLimited)
	}
	return handler(ctx, req)
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := authenticatedMethods[info.FullMethod]; !ok {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	userID, err := s.auth.Authenticate(accessToken)
	if err != nil {
		// clients match this message to decide whether to refresh
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return handler(context.WithValue(ctx, userIDKey, userID), req)
}

// clientIP returns the transport peer address. When the peer is a trusted
// proxy, x-forwarded-for is walked right to left and the first address that
// is not itself a trusted proxy wins.
func (s *GRPCServer) clientIP(ctx context.Context) string {
	host := peerHost(ctx)
	if host == "" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !s.trusted(addr) {
		return host
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return host
	}
	hops := strings.Split(strings.Join(md.Get(common.ForwardedForHeaderName), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// the chain is only as reliable as its last parseable hop
			break
		}
		if !s.trusted(hop) {
			return hop.Unmap().String()
		}
	}
	return host
}

func (s *GRPCServer) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range s.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
