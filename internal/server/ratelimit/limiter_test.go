package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return New(sessions.NewRedisStoreFromClient(client)), mr
}

func TestAllow_FixedWindow(t *testing.T) {
	l, mr := newRedisLimiter(t)
	ctx := context.Background()

	want := []bool{true, true, true, false}
	for i, w := range want {
		ok, err := l.Allow(ctx, "10.0.0.1", 3, 60*time.Second)
		require.NoError(t, err)
		assert.Equal(t, w, ok, "call %d", i+1)
	}

	mr.FastForward(60 * time.Second)

	ok, err := l.Allow(ctx, "10.0.0.1", 3, 60*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "a new window must allow again")
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, mr := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a", 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i == 0, ok)
	}

	ok, err := l.Allow(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, mr.Exists("ratelimit:a"))
	assert.True(t, mr.Exists("ratelimit:b"))
}

type failingCounter struct{ err error }

func (f failingCounter) IncrementCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, f.err
}

func TestAllow_StoreFailure(t *testing.T) {
	l := New(failingCounter{err: common.ErrStoreUnavailable})

	ok, err := l.Allow(context.Background(), "k", 3, time.Minute)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, common.ErrStoreUnavailable))
}

func TestAllow_InvalidArguments(t *testing.T) {
	l := New(failingCounter{})

	_, err := l.Allow(context.Background(), "k", 0, time.Minute)
	assert.Error(t, err)
	_, err = l.Allow(context.Background(), "k", 1, 0)
	assert.Error(t, err)
}

func TestPolicy_Enabled(t *testing.T) {
	assert.True(t, Policy{Limit: 1, Window: time.Second}.Enabled())
	assert.False(t, Policy{Limit: 0, Window: time.Second}.Enabled())
	assert.False(t, Policy{Limit: 1}.Enabled())
}
