package grpc

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"github.com/dmitrijs2005/gophauth/internal/server/ratelimit"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func newTestServer(opts ...Option) *GRPCServer {
	return NewGRPCServer("", logging.Nop{}, &fakeAuth{}, opts...)
}

func okHandler(called *bool) grpc.UnaryHandler {
	return func(ctx context.Context, req any) (any, error) {
		*called = true
		return "ok", nil
	}
}

func withToken(token string) context.Context {
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestAccessTokenInterceptor_PublicMethodNeedsNoToken(t *testing.T) {
	s := newTestServer()

	called := false
	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Login_FullMethodName}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, okHandler(&called))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called || resp != "ok" {
		t.Fatalf("handler not called properly: called=%v resp=%v", called, resp)
	}
}

func TestAccessTokenInterceptor_Logout(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Logout_FullMethodName}

	tests := []struct {
		name    string
		ctx     context.Context
		code    codes.Code
		message string
	}{
		{name: "missing token", ctx: context.Background(), code: codes.Unauthenticated, message: "missing token"},
		{name: "empty token", ctx: withToken(""), code: codes.Unauthenticated, message: "missing token"},
		{name: "invalid token", ctx: withToken("forged"), code: codes.Unauthenticated, message: "invalid token"},
		{name: "expired token", ctx: withToken("expired-token"), code: codes.Unauthenticated, message: common.ErrTokenExpired.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			h := func(ctx context.Context, req any) (any, error) {
				t.Fatal("handler must not be called")
				return nil, nil
			}

			_, err := s.accessTokenInterceptor(tt.ctx, nil, info, h)
			if status.Code(err) != tt.code {
				t.Fatalf("expected %v, got %v", tt.code, status.Code(err))
			}
			if got := status.Convert(err).Message(); got != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, got)
			}
		})
	}
}

func TestAccessTokenInterceptor_ValidTokenSetsUserID(t *testing.T) {
	s := newTestServer()
	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Logout_FullMethodName}

	var got string
	h := func(ctx context.Context, req any) (any, error) {
		got, _ = UserIDFromContext(ctx)
		return "ok", nil
	}

	if _, err := s.accessTokenInterceptor(withToken("good-token"), nil, info, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "user-1" {
		t.Fatalf("user id not propagated in context: got %q", got)
	}
}

func TestRateLimitInterceptor(t *testing.T) {
	limiter := &fakeLimiter{}
	s := newTestServer(WithRateLimiter(limiter, testPolicy))
	login := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Login_FullMethodName}

	ctxA := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5000}})
	ctxB := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 5000}})

	for i := 0; i < 2; i++ {
		called := false
		_, err := s.rateLimitInterceptor(ctxA, nil, login, okHandler(&called))
		assert.NoError(t, err)
		assert.True(t, called)
	}

	called := false
	_, err := s.rateLimitInterceptor(ctxA, nil, login, okHandler(&called))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.False(t, called)

	// another client has its own window
	_, err = s.rateLimitInterceptor(ctxB, nil, login, okHandler(&called))
	assert.NoError(t, err)

	// validate is not limited
	validate := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_ValidateToken_FullMethodName}
	for i := 0; i < 5; i++ {
		_, err = s.rateLimitInterceptor(ctxA, nil, validate, okHandler(&called))
		assert.NoError(t, err)
	}

	assert.Equal(t, pb.AuthService_Login_FullMethodName+":10.0.0.1", limiter.keys[0])
}

func TestRateLimitInterceptor_LimiterFailure(t *testing.T) {
	s := newTestServer(WithRateLimiter(&fakeLimiter{err: common.ErrStoreUnavailable}, testPolicy))
	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_SignUp_FullMethodName}

	called := false
	_, err := s.rateLimitInterceptor(context.Background(), nil, info, okHandler(&called))
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.NotContains(t, status.Convert(err).Message(), "store")
	assert.False(t, called)
}

func TestRateLimitInterceptor_Disabled(t *testing.T) {
	limiter := &fakeLimiter{}
	s := newTestServer(WithRateLimiter(limiter, testPolicy))
	s.policy.Limit = 0
	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Login_FullMethodName}

	for i := 0; i < 5; i++ {
		called := false
		_, err := s.rateLimitInterceptor(context.Background(), nil, info, okHandler(&called))
		assert.NoError(t, err)
		assert.True(t, called)
	}
	assert.Empty(t, limiter.keys)
}

func TestClientIP(t *testing.T) {
	tcpPeer := &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.7"), Port: 4242}}
	proxyPeer := &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 4242}}
	withXFF := func(p *peer.Peer, v string) context.Context {
		return metadata.NewIncomingContext(peer.NewContext(context.Background(), p),
			metadata.Pairs(common.ForwardedForHeaderName, v))
	}

	s := newTestServer(WithTrustedProxies([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}))

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "no information", ctx: context.Background(), want: "unknown"},
		{name: "peer", ctx: peer.NewContext(context.Background(), tcpPeer), want: "192.0.2.7"},
		{name: "untrusted peer header ignored", ctx: withXFF(tcpPeer, "203.0.113.9"), want: "192.0.2.7"},
		{name: "trusted proxy", ctx: withXFF(proxyPeer, " 203.0.113.9 "), want: "203.0.113.9"},
		{name: "trusted proxy chain", ctx: withXFF(proxyPeer, "198.51.100.1, 203.0.113.9, 10.1.2.3"), want: "203.0.113.9"},
		{name: "trusted proxy blank header", ctx: withXFF(proxyPeer, " "), want: "10.0.0.5"},
		{name: "trusted proxy garbage header", ctx: withXFF(proxyPeer, "not-an-ip"), want: "10.0.0.5"},
		{name: "trusted proxy without header", ctx: peer.NewContext(context.Background(), proxyPeer), want: "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.clientIP(tt.ctx))
		})
	}
}

func TestClientIP_NoTrustedProxies(t *testing.T) {
	s := newTestServer()
	ctx := metadata.NewIncomingContext(
		peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1}}),
		metadata.Pairs(common.ForwardedForHeaderName, "203.0.113.9"))

	assert.Equal(t, "10.0.0.5", s.clientIP(ctx))
}

func TestRateLimitInterceptor_ForwardedForCannotBypass(t *testing.T) {
	limiter := &fakeLimiter{}
	s := newTestServer(WithRateLimiter(limiter, ratelimit.Policy{Limit: 3, Window: time.Minute}))
	login := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Login_FullMethodName}
	base := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.7"), Port: 5000}})

	allowed := 0
	for i := 0; i < 20; i++ {
		ctx := metadata.NewIncomingContext(base,
			metadata.Pairs(common.ForwardedForHeaderName, fmt.Sprintf("203.0.113.%d", i)))
		called := false
		if _, err := s.rateLimitInterceptor(ctx, nil, login, okHandler(&called)); err == nil {
			allowed++
		}
	}

	assert.Equal(t, 3, allowed)
	assert.Len(t, limiter.counts, 1)
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	s := newTestServer()
	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Login_FullMethodName}

	wantErr := status.Error(codes.Internal, "internal error")
	_, err := s.loggingInterceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, wantErr
	})
	assert.Equal(t, wantErr, err)
}
