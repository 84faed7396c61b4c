// Package services contains server-side business logic. AuthService
// implements sign-up, login, password reset, token validation and refresh
// token rotation on top of the user repository, the session store and the
// token codec.
package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/notify"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/sessions"
	"github.com/dmitrijs2005/gophauth/internal/server/validation"
)

const (
	// resetTokenBytes is the entropy of a password reset token.
	resetTokenBytes = 32

	defaultNotifyTimeout = 30 * time.Second
)

// TokenCodec issues and verifies signed bearer tokens.
type TokenCodec interface {
	Issue(subject string, use auth.TokenUse, lifetime time.Duration) (string, time.Time, error)
	Verify(token string) (*auth.Claims, error)
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    sessions.Store
	tokens      TokenCodec
	sender      notify.Sender
	validator   *validation.Validator
	logger      logging.Logger

	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	resetTokenTTL   time.Duration
	notifyTimeout   time.Duration
	passwordParams  cryptox.Params

	// dummyHash is verified against when the user does not exist, so that
	// unknown emails cost the same as wrong passwords.
	dummyHash string

	dispatches sync.WaitGroup
}

type Option func(*AuthService)

// WithPasswordParams overrides the argon2id cost parameters.
func WithPasswordParams(p cryptox.Params) Option {
	return func(s *AuthService) { s.passwordParams = p }
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, store sessions.Store, codec TokenCodec,
	sender notify.Sender, l logging.Logger, cfg *config.Config, opts ...Option) (*AuthService, error) {

	s := &AuthService{
		db:              db,
		repomanager:     m,
		sessions:        store,
		tokens:          codec,
		sender:          sender,
		validator:       validation.New(),
		logger:          l.With("module", "auth_service"),
		accessTokenTTL:  cfg.AccessTokenValidityDuration,
		refreshTokenTTL: cfg.RefreshTokenValidityDuration,
		resetTokenTTL:   cfg.ResetTokenValidityDuration,
		notifyTimeout:   cfg.NotifyTimeout,
		passwordParams:  cryptox.DefaultParams,
	}
	for _, o := range opts {
		o(s)
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyTimeout
	}

	dummy, err := cryptox.HashPassword(common.GenerateRandByteArray(16), s.passwordParams)
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy

	return s, nil
}

// SignUp validates in, hashes the password and creates an active user.
// A registered email yields common.ErrorAlreadyExists and leaves the
// existing record untouched.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	in.normalize()
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	password := []byte(in.Password)
	defer common.WipeByteArray(password)

	hash, err := cryptox.HashPassword(password, s.passwordParams)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	var created *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		exists, err := repo.EmailExists(ctx, in.Email)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrorAlreadyExists
		}

		created, err = repo.Create(ctx, &models.User{
			Email:        in.Email,
			PasswordHash: hash,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			IsActive:     true,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		s.logger.Error(ctx, "sign up failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "user registered", "user_id", created.ID)
	return created.Public(), nil
}

// Login checks the credentials and issues an access/refresh token pair. Any
// credential problem (unknown email, wrong password, inactive account) is
// the same common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = common.NormalizeEmail(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	password := []byte(in.Password)
	defer common.WipeByteArray(password)

	repo := s.repomanager.Users(s.db)

	user, err := repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = cryptox.VerifyPassword(password, s.dummyHash)
			return nil, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrorInternal
	}

	ok, err := cryptox.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}
	if !ok || !user.IsActive {
		return nil, common.ErrorUnauthorized
	}

	pair, err := s.issueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := repo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "last login not recorded", "user_id", user.ID, "error", err)
	} else {
		now := time.Now().UTC()
		user.LastLoginAt = &now
	}

	return &LoginResult{TokenPair: *pair, User: user.Public()}, nil
}

// ForgotPassword starts the reset handshake. The outcome seen by the caller
// is identical whether or not the email belongs to an active user; both
// paths generate a token and make one store round trip.
func (s *AuthService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	in.Email = common.NormalizeEmail(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return err
	}

	token, err := common.MakeRandHexString(resetTokenBytes)
	if err != nil {
		s.logger.Error(ctx, "reset token generation failed", "error", err)
		return common.ErrorInternal
	}

	user, err := s.repomanager.Users(s.db).FindByEmail(ctx, in.Email)
	switch {
	case err == nil && user.IsActive:
		if err := s.sessions.PutResetToken(ctx, token, user.ID, s.resetTokenTTL); err != nil {
			s.logger.Error(ctx, "reset token not stored", "error", err)
			return common.ErrorInternal
		}
		s.dispatchResetLink(ctx, user.Email, token)

	case err == nil || errors.Is(err, common.ErrorNotFound):
		// the token was never stored, so this lookup always misses
		if _, err := s.sessions.ConsumeResetToken(ctx, token); err != nil && !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "session store failed", "error", err)
			return common.ErrorInternal
		}

	default:
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return common.ErrorInternal
	}

	return nil
}

// ResetPassword redeems a reset token, sets the new password and revokes the
// user's refresh token. Tokens are single-use: a second call with the same
// token fails with common.ErrInvalidOrExpiredToken.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := s.validator.Struct(in); err != nil {
		return err
	}

	userID, err := s.sessions.ConsumeResetToken(ctx, in.Token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidOrExpiredToken
		}
		s.logger.Error(ctx, "reset token lookup failed", "error", err)
		return common.ErrorInternal
	}

	// revoke before the password changes so a failure here leaves the old
	// password in place
	if err := s.sessions.DeleteRefreshToken(ctx, userID); err != nil {
		s.logger.Error(ctx, "refresh token not revoked before password reset", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	password := []byte(in.NewPassword)
	defer common.WipeByteArray(password)

	hash, err := cryptox.HashPassword(password, s.passwordParams)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return common.ErrorInternal
	}

	if err := s.repomanager.Users(s.db).UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidOrExpiredToken
		}
		s.logger.Error(ctx, "password update failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	s.logger.Info(ctx, "password reset", "user_id", userID)
	return nil
}

// ValidateToken verifies an access token and returns the active user it was
// issued to. Every rejection is common.ErrorUnauthorized; the codec's reason
// is only logged.
func (s *AuthService) ValidateToken(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.verify(accessToken, auth.UseAccess)
	if err != nil {
		s.logger.Debug(ctx, "access token rejected", "error", err)
		return nil, common.ErrorUnauthorized
	}

	user, err := s.repomanager.Users(s.db).FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrorInternal
	}
	if !user.IsActive {
		return nil, common.ErrorUnauthorized
	}

	return user.Public(), nil
}

// Authenticate resolves an access token to its user id without touching any
// store. Expired tokens yield common.ErrTokenExpired so clients know to
// refresh; everything else is common.ErrorUnauthorized.
func (s *AuthService) Authenticate(accessToken string) (string, error) {
	claims, err := s.verify(accessToken, auth.UseAccess)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrorUnauthorized
	}
	return claims.Subject, nil
}

// RefreshToken exchanges a refresh token for a new pair. The presented token
// must be signed by us and also be the one currently stored for its user;
// rotation is a compare-and-swap, so a token can be redeemed only once.
func (s *AuthService) RefreshToken(ctx context.Context, in RefreshTokenInput) (*TokenPair, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	claims, err := s.verify(in.RefreshToken, auth.UseRefresh)
	if err != nil {
		s.logger.Debug(ctx, "refresh token rejected", "error", err)
		return nil, common.ErrInvalidOrExpiredToken
	}
	userID := claims.Subject

	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidOrExpiredToken
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrorInternal
	}
	if !user.IsActive {
		return nil, common.ErrInvalidOrExpiredToken
	}

	pair, err := s.newTokenPair(userID)
	if err != nil {
		s.logger.Error(ctx, "token signing failed", "error", err)
		return nil, common.ErrorInternal
	}

	if err := s.sessions.RotateRefreshToken(ctx, userID, in.RefreshToken, pair.RefreshToken, s.refreshTokenTTL); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidOrExpiredToken
		}
		s.logger.Error(ctx, "refresh token rotation failed", "error", err)
		return nil, common.ErrorInternal
	}

	return pair, nil
}

// Logout revokes the refresh token of userID. Access tokens already issued
// stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteRefreshToken(ctx, userID); err != nil {
		s.logger.Error(ctx, "refresh token not revoked", "user_id", userID, "error", err)
		return common.ErrorInternal
	}
	return nil
}

// Wait blocks until in-flight reset link deliveries have finished.
func (s *AuthService) Wait() {
	s.dispatches.Wait()
}

// --- helpers below ---

func (s *AuthService) verify(token string, use auth.TokenUse) (*auth.Claims, error) {
	if token == "" {
		return nil, common.ErrInvalidToken
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Use != use {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) newTokenPair(userID string) (*TokenPair, error) {
	access, expiresAt, err := s.tokens.Issue(userID, auth.UseAccess, s.accessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.Issue(userID, auth.UseRefresh, s.refreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTokenTTL / time.Second),
		ExpiresAt:    expiresAt,
	}, nil
}

// issueTokenPair mints a pair and makes its refresh token the user's only
// active one.
func (s *AuthService) issueTokenPair(ctx context.Context, userID string) (*TokenPair, error) {
	pair, err := s.newTokenPair(userID)
	if err != nil {
		s.logger.Error(ctx, "token signing failed", "error", err)
		return nil, common.ErrorInternal
	}
	if err := s.sessions.PutRefreshToken(ctx, userID, pair.RefreshToken, s.refreshTokenTTL); err != nil {
		s.logger.Error(ctx, "refresh token not stored", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}
	return pair, nil
}

// dispatchResetLink sends the link in the background. The delivery outlives
// the request but not the process: Wait drains it on shutdown.
func (s *AuthService) dispatchResetLink(ctx context.Context, email, token string) {
	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		if err := s.sender.SendResetLink(ctx, email, token); err != nil {
			if errors.Is(err, common.ErrDeliveryFailed) {
				s.logger.Error(ctx, "reset link delivery failed", "error", err)
				return
			}
			s.logger.Error(ctx, "reset link dispatch error", "error", err)
		}
	}()
}
