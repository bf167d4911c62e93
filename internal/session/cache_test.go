package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/solar-data-aggregation/internal/cache"
	"github.com/i474232898/solar-data-aggregation/internal/solar"
	"github.com/i474232898/solar-data-aggregation/internal/store"
)

type fakeAuth struct {
	mu    sync.Mutex
	now   func() time.Time
	calls int
	err   error
}

func (f *fakeAuth) Login(_ context.Context) (solar.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return solar.Credential{}, f.err
	}
	return solar.Credential{
		Token:    []byte(`{"uid":"u","token":"t` + string(rune('0'+f.calls)) + `"}`),
		IssuedAt: f.now().UTC(),
	}, nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)}
}

func TestEnsureCredential_ReusesWithinTTL(t *testing.T) {
	clk := newClock()
	auth := &fakeAuth{now: clk.Now}
	st := store.NewMemoryStore(0, 0)
	c := New(auth, st, WithClock(clk.Now))

	first, err := c.EnsureCredential(context.Background())
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)
	second, err := c.EnsureCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, 1, st.CredentialCount())
}

func TestEnsureCredential_RefreshesWhenStale(t *testing.T) {
	clk := newClock()
	auth := &fakeAuth{now: clk.Now}
	st := store.NewMemoryStore(0, 0)
	c := New(auth, st, WithClock(clk.Now))

	first, err := c.EnsureCredential(context.Background())
	require.NoError(t, err)

	clk.Advance(5*time.Minute + time.Second)
	second, err := c.EnsureCredential(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, 2, auth.calls)
	assert.Equal(t, 2, st.CredentialCount())

	latest, err := st.LatestCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.Token, latest.Token)
}

func TestEnsureCredential_UsesStoredCredential(t *testing.T) {
	clk := newClock()
	auth := &fakeAuth{now: clk.Now}
	st := store.NewMemoryStore(0, 0)
	stored := solar.Credential{Token: []byte("stored"), IssuedAt: clk.Now().Add(-time.Minute)}
	require.NoError(t, st.SaveCredential(context.Background(), stored))

	c := New(auth, st, WithClock(clk.Now))
	got, err := c.EnsureCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []byte("stored"), got.Token)
	assert.Zero(t, auth.calls)
}

func TestEnsureCredential_LoginFailureWritesNothing(t *testing.T) {
	clk := newClock()
	auth := &fakeAuth{now: clk.Now, err: errors.New("connection refused")}
	st := store.NewMemoryStore(0, 0)
	c := New(auth, st, WithClock(clk.Now))

	_, err := c.EnsureCredential(context.Background())
	require.Error(t, err)

	var authErr *solar.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Zero(t, st.CredentialCount())
}

func TestInvalidate_ForcesLogin(t *testing.T) {
	clk := newClock()
	auth := &fakeAuth{now: clk.Now}
	st := store.NewMemoryStore(0, 0)
	hot, err := cache.New()
	require.NoError(t, err)
	defer hot.Close()

	c := New(auth, st, WithClock(clk.Now), WithHotCache(hot))

	_, err = c.EnsureCredential(context.Background())
	require.NoError(t, err)

	c.Invalidate()
	_, err = c.EnsureCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, auth.calls)

	// The forced login is one-shot.
	_, err = c.EnsureCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, auth.calls)
}
