package rbac

import (
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
)

// DefaultCacheTTL bounds how long a cached capability set may be stale.
const DefaultCacheTTL = 5 * time.Minute

// CacheObserver receives hit/miss notifications; observability.Metrics implements it.
type CacheObserver interface {
	ObserveCache(hit bool)
}

type cacheEntry struct {
	value   catalog.Set
	roles   RoleSet
	expires time.Time
}

// CapabilityCache holds effective capability sets keyed by canonical role-set
// key. Every invalidation bumps the generation so fills computed against an
// older matrix are discarded.
type CapabilityCache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]cacheEntry
	byRole   map[Role]map[string]struct{}
	gen      uint64
	observer CacheObserver
}

// CacheOption customises a CapabilityCache.
type CacheOption func(*CapabilityCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *CapabilityCache) { c.now = now }
}

// WithObserver reports lookups to observer.
func WithObserver(observer CacheObserver) CacheOption {
	return func(c *CapabilityCache) { c.observer = observer }
}

// NewCapabilityCache creates a cache; ttl <= 0 selects DefaultCacheTTL.
func NewCapabilityCache(ttl time.Duration, opts ...CacheOption) *CapabilityCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &CapabilityCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		byRole:  make(map[Role]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached set when present and not expired.
func (c *CapabilityCache) Get(key string) (catalog.Set, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	hit := ok && c.now().Before(entry.expires)
	if c.observer != nil {
		c.observer.ObserveCache(hit)
	}
	if !hit {
		return nil, false
	}
	return entry.value, true
}

// Generation returns the current invalidation generation.
func (c *CapabilityCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Put stores value for roles when no invalidation happened since gen was read.
func (c *CapabilityCache) Put(roles RoleSet, value catalog.Set, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	key := roles.Key()
	c.entries[key] = cacheEntry{value: value, roles: roles, expires: c.now().Add(c.ttl)}
	for _, role := range roles {
		keys, ok := c.byRole[role]
		if !ok {
			keys = make(map[string]struct{})
			c.byRole[role] = keys
		}
		keys[key] = struct{}{}
	}
	return true
}

// Invalidate drops every cached set whose role-set contains role.
func (c *CapabilityCache) Invalidate(role Role) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	keys := c.byRole[role]
	for key := range keys {
		if entry, ok := c.entries[key]; ok {
			for _, r := range entry.roles {
				if r != role {
					delete(c.byRole[r], key)
				}
			}
		}
		delete(c.entries, key)
	}
	delete(c.byRole, role)
	return len(keys)
}

// Purge drops every entry.
func (c *CapabilityCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]cacheEntry)
	c.byRole = make(map[Role]map[string]struct{})
}

// Len returns the number of cached entries, expired ones included.
func (c *CapabilityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
