package service

import (
	"sync"
	"time"

	"photobridge_backend/internal/graph"
)

// ProximityCache remembers resolved city lists keyed by the coordinate
// they were computed for. Lookups are by distance, not exact key, so a
// query close to a previous one can reuse its result. Entries are
// evicted oldest-first once the cache is full or an entry outlives the
// TTL. Safe for concurrent use.
type ProximityCache struct {
	mu         sync.Mutex
	entries    []cacheEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type cacheEntry struct {
	coord   Coordinates
	places  []graph.Place
	addedAt time.Time
}

// NewProximityCache creates a cache holding at most maxEntries results,
// each valid for ttl. Non-positive values disable the respective limit.
func NewProximityCache(maxEntries int, ttl time.Duration) *ProximityCache {
	return &ProximityCache{
		entries:    make([]cacheEntry, 0, 16),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Nearest returns the stored result closest to coord and its distance
// in meters. The returned slice is the stored one; callers that mutate
// it must copy first.
func (c *ProximityCache) Nearest(coord Coordinates) ([]graph.Place, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpired()

	var (
		nearest []graph.Place
		best    = 1.0e12
		found   bool
	)
	for i := range c.entries {
		dist := Distance(coord, c.entries[i].coord)
		if dist < best {
			nearest = c.entries[i].places
			best = dist
			found = true
		}
	}
	return nearest, best, found
}

// Add stores a resolved result for coord.
func (c *ProximityCache) Add(coord Coordinates, places []graph.Place) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpired()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, cacheEntry{
		coord:   coord,
		places:  places,
		addedAt: c.now(),
	})
}

// Len returns the number of live entries.
func (c *ProximityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpired()
	return len(c.entries)
}

// evictExpired drops entries older than the TTL. Entries are in
// insertion order, so expired ones form a prefix. Callers must hold mu.
func (c *ProximityCache) evictExpired() {
	if c.ttl <= 0 {
		return
	}
	cutoff := c.now().Add(-c.ttl)
	idx := 0
	for idx < len(c.entries) && c.entries[idx].addedAt.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		c.entries = c.entries[idx:]
	}
}
