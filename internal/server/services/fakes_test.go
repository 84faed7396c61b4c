package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/gophauth/internal/server/sessions"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- users repository ---

type memUsers struct {
	mu   sync.Mutex
	byID map[string]models.User

	findErr      error
	existsErr    error
	createErr    error
	updateErr    error
	lastLoginErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]models.User)}
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	m.byID[u.ID] = *u
	c := *u
	return &c, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.byID {
		if u.Email == email {
			c := u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (m *memUsers) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, u := range m.byID {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLoginErr != nil {
		return m.lastLoginErr
	}
	u, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	m.byID[id] = u
	return nil
}

func (m *memUsers) get(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memUsers) set(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = u
}

type fakeRepoManager struct {
	u *memUsers
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(dbx.DBTX) users.Repository            { return f.u }

// --- notification sender ---

type sentLink struct {
	email string
	token string
}

type fakeSender struct {
	sent chan sentLink
	err  error
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan sentLink, 8)}
}

func (f *fakeSender) SendResetLink(_ context.Context, email, token string) error {
	f.sent <- sentLink{email: email, token: token}
	return f.err
}

func (f *fakeSender) next(t *testing.T) sentLink {
	t.Helper()
	select {
	case s := <-f.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no reset link was sent")
		return sentLink{}
	}
}

// --- clock ---

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

// failingDeleteStore fails DeleteRefreshToken and delegates everything else.
type failingDeleteStore struct {
	sessions.Store
}

func (failingDeleteStore) DeleteRefreshToken(context.Context, string) error {
	return errBoom{}
}

// --- environment ---

var testPasswordParams = cryptox.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

type testEnv struct {
	svc    *AuthService
	users  *memUsers
	mock   sqlmock.Sqlmock
	mr     *miniredis.Miniredis
	clock  *fakeClock
	sender *fakeSender
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: time.Now().UTC()}
	codec, err := auth.NewCodec([]byte("test-secret"), auth.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}

	cfg := &config.Config{
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 7 * 24 * time.Hour,
		ResetTokenValidityDuration:   30 * time.Minute,
		NotifyTimeout:                time.Second,
	}

	u := newMemUsers()
	sender := newFakeSender()

	svc, err := NewAuthService(db, &fakeRepoManager{u: u}, sessions.NewRedisStoreFromClient(client), codec,
		sender, logging.Nop{}, cfg, WithPasswordParams(testPasswordParams))
	if err != nil {
		t.Fatalf("NewAuthService error: %v", err)
	}
	t.Cleanup(svc.Wait)

	return &testEnv{svc: svc, users: u, mock: mock, mr: mr, clock: clock, sender: sender}
}

// signUp registers a user, adding the transaction expectations it needs.
func (e *testEnv) signUp(t *testing.T, email, password string) *models.User {
	t.Helper()
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()

	u, err := e.svc.SignUp(context.Background(), SignUpInput{
		Email: email, Password: password, FirstName: "Alice", LastName: "Smith",
	})
	if err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	return u
}
