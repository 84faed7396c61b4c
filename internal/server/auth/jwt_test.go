package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 10, 0, 0, 500, time.UTC)}
	c, err := NewCodec([]byte("super-secret"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	return c, clock
}

func TestNewCodec_EmptySecret(t *testing.T) {
	t.Parallel()

	if _, err := NewCodec(nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)

	for _, lifetime := range []time.Duration{time.Second, time.Hour, 7 * 24 * time.Hour} {
		subject := uuid.NewString()

		tok, expiresAt, err := c.Issue(subject, UseAccess, lifetime)
		if err != nil {
			t.Fatalf("Issue error: %v", err)
		}

		claims, err := c.Verify(tok)
		if err != nil {
			t.Fatalf("Verify error: %v", err)
		}
		if claims.Subject != subject {
			t.Fatalf("subject mismatch: got %q want %q", claims.Subject, subject)
		}
		if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != lifetime {
			t.Fatalf("expires_at - issued_at = %s, want %s", got, lifetime)
		}
		if !claims.ExpiresAt.Time.Equal(expiresAt) {
			t.Fatalf("returned expiry %s differs from claim %s", expiresAt, claims.ExpiresAt.Time)
		}
		if claims.Use != UseAccess {
			t.Fatalf("use = %q", claims.Use)
		}
	}
}

func TestIssue_UniqueIDs(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	a, _, _ := c.Issue("u1", UseRefresh, time.Hour)
	b, _, _ := c.Issue("u1", UseRefresh, time.Hour)
	if a == b {
		t.Fatal("tokens issued in the same second must differ")
	}
}

func TestIssue_RejectsBadInput(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	if _, _, err := c.Issue("", UseAccess, time.Hour); err == nil {
		t.Fatal("expected error for empty subject")
	}
	if _, _, err := c.Issue("u1", UseAccess, 0); err == nil {
		t.Fatal("expected error for zero lifetime")
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	c, clock := newTestCodec(t)
	tok, _, err := c.Issue("u1", UseAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// within the skew window the token is still accepted
	clock.Advance(time.Hour + Leeway - time.Second)
	if _, err := c.Verify(tok); err != nil {
		t.Fatalf("expected token valid inside leeway, got %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := c.Verify(tok); !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestVerify_AnyAlteredByteFailsSignature(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	tok, _, err := c.Issue(uuid.NewString(), UseAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	for i := 0; i < len(tok); i++ {
		if tok[i] == '.' {
			continue
		}
		repl := byte('A')
		if tok[i] == 'A' {
			repl = 'B'
		}
		altered := tok[:i] + string(repl) + tok[i+1:]

		if _, err := c.Verify(altered); !errors.Is(err, common.ErrInvalidSignature) {
			t.Fatalf("byte %d altered: want ErrInvalidSignature, got %v", i, err)
		}
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	other, err := NewCodec([]byte("another-secret"))
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}

	tok, _, _ := other.Issue("u1", UseAccess, time.Hour)
	if _, err := c.Verify(tok); !errors.Is(err, common.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	for _, tok := range []string{"", "abc", "a.b", "a..c", "a.b.c.d"} {
		if _, err := c.Verify(tok); !errors.Is(err, common.ErrInvalidToken) {
			t.Fatalf("Verify(%q): want ErrInvalidToken, got %v", tok, err)
		}
	}
}

// A correctly signed token with an unusable payload is malformed, not forged.
func TestVerify_SignedGarbagePayload(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	enc := base64.RawURLEncoding

	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := enc.EncodeToString([]byte(`not json`))
	sig, err := jwt.SigningMethodHS256.Sign(header+"."+payload, []byte("super-secret"))
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	tok := strings.Join([]string{header, payload, enc.EncodeToString(sig)}, ".")

	_, err = c.Verify(tok)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	c, clock := newTestCodec(t)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
		Use: UseAccess,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}
	if _, err := c.Verify(tok); err == nil {
		t.Fatal("unsigned token must be rejected")
	}
}
