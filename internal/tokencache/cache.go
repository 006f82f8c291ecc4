// Package tokencache implements the Token Cache (C3): an in-memory map
// from connection ID to (access token, admin ID, expiry), evicted on
// expiry or disconnect, per spec §2 and §9 ("ambient global state ...
// encapsulated behind narrow interfaces").
package tokencache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Entry is the per-connection record the cache holds.
type Entry struct {
	AccessToken string
	AdminID     string
	ExpiresAt   time.Time
}

// Cache is a narrow interface over the token cache so callers (the Router,
// the Connection Supervisor) never reach a process-global singleton —
// every caller receives this through construction, per §9.
type Cache interface {
	Put(connectionID string, entry Entry)
	Get(connectionID string) (Entry, bool)
	Evict(connectionID string)
}

type memCache struct {
	c *gocache.Cache
}

// New builds a Cache backed by patrickmn/go-cache, whose own expiration
// sweep matches the eviction-on-expiry half of C3's contract; Evict
// (called on disconnect) covers the other half.
func New(cleanupInterval time.Duration) Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &memCache{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *memCache) Put(connectionID string, entry Entry) {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return
	}
	m.c.Set(connectionID, entry, ttl)
}

func (m *memCache) Get(connectionID string) (Entry, bool) {
	v, ok := m.c.Get(connectionID)
	if !ok {
		return Entry{}, false
	}
	entry, ok := v.(Entry)
	return entry, ok
}

func (m *memCache) Evict(connectionID string) {
	m.c.Delete(connectionID)
}
