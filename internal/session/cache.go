package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/solar-data-aggregation/internal/cache"
	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

// DefaultTTL is how long an issued credential is trusted before a new login.
const DefaultTTL = 5 * time.Minute

const cacheKey = "session:credential"

// Authenticator performs the login exchange with the solar portal.
type Authenticator interface {
	Login(ctx context.Context) (solar.Credential, error)
}

// Cache hands out the newest issued credential and logs in again once it is
// older than the TTL. Credentials are appended to the store, never updated.
type Cache struct {
	auth   Authenticator
	store  solar.CredentialStore
	hot    *cache.Cache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu         sync.Mutex
	forceLogin bool
}

// Option customises a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithHotCache keeps the current credential in memory in front of the store.
func WithHotCache(hot *cache.Cache) Option {
	return func(c *Cache) { c.hot = hot }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a session Cache.
func New(auth Authenticator, store solar.CredentialStore, opts ...Option) *Cache {
	c := &Cache{
		auth:   auth,
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureCredential returns the newest credential if it is still fresh, or logs
// in, persists and returns a new one. A failed login writes nothing.
func (c *Cache) EnsureCredential(ctx context.Context) (solar.Credential, error) {
	c.mu.Lock()
	force := c.forceLogin
	c.mu.Unlock()

	if !force {
		cred, ok, err := c.lookup(ctx)
		if err != nil {
			return solar.Credential{}, err
		}
		if ok {
			return cred, nil
		}
	}

	cred, err := c.auth.Login(ctx)
	if err != nil {
		var authErr *solar.AuthError
		if errors.As(err, &authErr) {
			return solar.Credential{}, err
		}
		return solar.Credential{}, &solar.AuthError{Err: err}
	}

	if err := c.store.SaveCredential(ctx, cred); err != nil {
		return solar.Credential{}, err
	}
	c.remember(cred)

	c.mu.Lock()
	c.forceLogin = false
	c.mu.Unlock()

	c.logger.Info("issued new credential", zap.Time("issued_at", cred.IssuedAt))
	return cred, nil
}

// Invalidate makes the next EnsureCredential log in regardless of age.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.forceLogin = true
	c.mu.Unlock()

	if c.hot != nil {
		c.hot.Del(cacheKey)
	}
}

func (c *Cache) lookup(ctx context.Context) (solar.Credential, bool, error) {
	if c.hot != nil {
		if v, ok := c.hot.Get(cacheKey); ok {
			cred := v.(solar.Credential)
			if c.fresh(cred) {
				return cred, true, nil
			}
		}
	}

	cred, err := c.store.LatestCredential(ctx)
	if errors.Is(err, solar.ErrNotFound) {
		return solar.Credential{}, false, nil
	}
	if err != nil {
		return solar.Credential{}, false, err
	}
	if !c.fresh(cred) {
		c.logger.Debug("credential is stale", zap.Duration("age", cred.Age(c.now())))
		return solar.Credential{}, false, nil
	}

	c.remember(cred)
	return cred, true, nil
}

func (c *Cache) fresh(cred solar.Credential) bool {
	return cred.Age(c.now()) <= c.ttl
}

func (c *Cache) remember(cred solar.Credential) {
	if c.hot == nil {
		return
	}
	c.hot.SetWithTTL(cacheKey, cred, c.ttl-cred.Age(c.now()))
}
