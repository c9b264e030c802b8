package auth

import (
	"sync"
	"time"
)

// TokenCache memoizes validated token claims so hot request paths skip
// signature verification. Entries expire with the token itself and are
// evicted lazily on lookup.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	claims    *Claims
	expiresAt time.Time
}

// NewTokenCache creates an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{entries: make(map[string]cacheEntry)}
}

// Get returns cached claims for a token, or nil if absent or expired.
func (c *TokenCache) Get(token string) *Claims {
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, token)
		c.mu.Unlock()
		return nil
	}
	return entry.claims
}

// Put caches claims until the token's own expiry.
func (c *TokenCache) Put(token string, claims *Claims) {
	if claims.ExpiresAt == nil {
		return
	}
	c.mu.Lock()
	c.entries[token] = cacheEntry{claims: claims, expiresAt: claims.ExpiresAt.Time}
	c.mu.Unlock()
}

// Invalidate drops a single token, e.g. on logout.
func (c *TokenCache) Invalidate(token string) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}

// Validate checks the cache first and falls back to full JWT validation,
// caching the result.
func (c *TokenCache) Validate(secret, token string) (*Claims, error) {
	if claims := c.Get(token); claims != nil {
		return claims, nil
	}
	claims, err := ValidateToken(secret, token)
	if err != nil {
		return nil, err
	}
	c.Put(token, claims)
	return claims, nil
}
