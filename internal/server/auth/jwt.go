// Package auth implements the token codec: compact HS256-signed bearer
// tokens carrying a subject, issue time and expiry.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Leeway is the clock skew tolerated when checking expiry and issue time.
const Leeway = 30 * time.Second

// TokenUse separates access tokens from refresh tokens so one can never be
// presented in place of the other.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

// Claims is the token payload: sub, iat, exp, a random jti and the token use.
type Claims struct {
	jwt.RegisteredClaims
	Use TokenUse `json:"use"`
}

// Codec signs and verifies tokens with a single immutable secret.
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

type Option func(*Codec)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(Leeway),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	return c, nil
}

// Issue signs a token for subject valid for lifetime and returns it with its
// expiry. Times are truncated to whole seconds, so expiry is exactly
// issued-at plus lifetime.
func (c *Codec) Issue(subject string, use TokenUse, lifetime time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	if lifetime <= 0 {
		return "", time.Time{}, fmt.Errorf("non-positive token lifetime %s", lifetime)
	}

	issuedAt := c.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(lifetime)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Use: use,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature over the raw header and payload before any
// field is decoded, then validates the claims. Errors match
// common.ErrInvalidToken (malformed), common.ErrInvalidSignature or
// common.ErrTokenExpired.
func (c *Codec) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, common.ErrInvalidToken
	}

	// strict decoding rejects non-canonical trailing bits, so no two
	// signature strings decode to the same bytes
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return nil, common.ErrInvalidSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return nil, common.ErrInvalidSignature
	}

	claims := &Claims{}
	_, err = c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
	}
	if claims.Use != UseAccess && claims.Use != UseRefresh {
		return nil, fmt.Errorf("%w: unknown token use %q", common.ErrInvalidToken, claims.Use)
	}

	return claims, nil
}
