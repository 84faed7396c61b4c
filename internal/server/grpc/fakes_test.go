package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

// fakeAuth returns canned results and records what it was called with.
type fakeAuth struct {
	mu sync.Mutex

	signUpUser *models.User
	signUpErr  error
	signUpIn   services.SignUpInput

	loginRes *services.LoginResult
	loginErr error

	forgotErr error
	resetErr  error
	resetIn   services.ResetPasswordInput

	validateUser *models.User
	validateErr  error

	refreshPair *services.TokenPair
	refreshErr  error

	logoutErr    error
	loggedOutIDs []string
}

func (f *fakeAuth) SignUp(_ context.Context, in services.SignUpInput) (*models.User, error) {
	f.mu.Lock()
	f.signUpIn = in
	f.mu.Unlock()
	return f.signUpUser, f.signUpErr
}

func (f *fakeAuth) Login(context.Context, services.LoginInput) (*services.LoginResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeAuth) ForgotPassword(context.Context, services.ForgotPasswordInput) error {
	return f.forgotErr
}

func (f *fakeAuth) ResetPassword(_ context.Context, in services.ResetPasswordInput) error {
	f.mu.Lock()
	f.resetIn = in
	f.mu.Unlock()
	return f.resetErr
}

func (f *fakeAuth) ValidateToken(context.Context, string) (*models.User, error) {
	return f.validateUser, f.validateErr
}

func (f *fakeAuth) RefreshToken(context.Context, services.RefreshTokenInput) (*services.TokenPair, error) {
	return f.refreshPair, f.refreshErr
}

func (f *fakeAuth) Logout(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOutIDs = append(f.loggedOutIDs, userID)
	return f.logoutErr
}

// Authenticate accepts "good-token" for user-1 and reports "expired-token"
// as expired.
func (f *fakeAuth) Authenticate(token string) (string, error) {
	switch token {
	case "good-token":
		return "user-1", nil
	case "expired-token":
		return "", common.ErrTokenExpired
	default:
		return "", common.ErrorUnauthorized
	}
}

// fakeLimiter allows limit calls per key and counts them.
type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func (l *fakeLimiter) AllowPolicy(_ context.Context, key string, p ratelimit.Policy) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.counts == nil {
		l.counts = make(map[string]int64)
	}
	l.counts[key]++
	l.keys = append(l.keys, key)
	return l.counts[key] <= p.Limit, nil
}

var testPolicy = ratelimit.Policy{Limit: 2, Window: time.Minute}
