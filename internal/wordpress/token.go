package wordpress

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// expirySkew renews a token this long before its exp claim.
const expirySkew = 30 * time.Second

// TokenCache holds one bearer token and renews it when it expires or is
// invalidated. Concurrent renewals share a single login.
type TokenCache struct {
	fetch func(ctx context.Context) (string, error)
	ttl   time.Duration
	now   func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenCache caches tokens from fetch for at most ttl, or until the JWT
// exp claim if that comes first.
func NewTokenCache(ttl time.Duration, fetch func(ctx context.Context) (string, error)) *TokenCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenCache{fetch: fetch, ttl: ttl, now: time.Now}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expires) {
		return c.token, true
	}
	return "", false
}

// Token returns a valid token, logging in if needed.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}
	v, err, _ := c.group.Do("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		tok, err := c.fetch(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = tok
		c.expires = c.expiry(tok)
		c.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token; the next Token call logs in again.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}

// expiry reads exp without verifying the signature; the CMS verifies it.
func (c *TokenCache) expiry(tok string) time.Time {
	exp := c.now().Add(c.ttl)
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil || claims.ExpiresAt == nil {
		return exp
	}
	if e := claims.ExpiresAt.Time.Add(-expirySkew); e.Before(exp) {
		return e
	}
	return exp
}
