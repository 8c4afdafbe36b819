package security

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Subtracted from the advertised lifetime so a token is never sent at the edge of expiry.
const tokenExpiryMargin = 60 * time.Second

// DefaultTokenLifetime applies when the token endpoint omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

type cachedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenCache holds acquired OAuth2 access tokens keyed by scheme and client id.
// Concurrent writers for the same key race; the last write wins.
type TokenCache struct {
	store *gocache.Cache
	now   func() time.Time
}

func NewTokenCache(now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{
		store: gocache.New(gocache.NoExpiration, 10*time.Minute),
		now:   now,
	}
}

func tokenKey(scheme, clientID string) string {
	return scheme + "\x00" + clientID
}

// Get returns a token that is still valid at the cache clock. A stale entry
// is left for the store's TTL to evict so a concurrent Put is never dropped.
func (c *TokenCache) Get(scheme, clientID string) (string, bool) {
	item, ok := c.store.Get(tokenKey(scheme, clientID))
	if !ok {
		return "", false
	}
	tok, ok := item.(cachedToken)
	if !ok || !c.now().Before(tok.ExpiresAt) {
		return "", false
	}
	return tok.Token, true
}

// Put stores a token until expiresAt. Already-expired tokens are not stored.
func (c *TokenCache) Put(scheme, clientID, token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 || token == "" {
		return
	}
	c.store.Set(tokenKey(scheme, clientID), cachedToken{Token: token, ExpiresAt: expiresAt}, ttl)
}

// ExpiresAt computes the cache deadline for a token issued at issued with the
// given lifetime (zero means DefaultTokenLifetime).
func ExpiresAt(issued time.Time, lifetime time.Duration) time.Time {
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return issued.Add(lifetime - tokenExpiryMargin)
}

func (c *TokenCache) Len() int {
	return c.store.ItemCount()
}
