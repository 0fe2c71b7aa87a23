package exposure

import (
	"math"
	"strconv"
	"strings"
	"sync"
)

// DefaultCacheSize is the number of scores kept before the cache is reset.
const DefaultCacheSize = 1024

// keyPrecision rounds vertices to 1e-5 degrees (about 1m) for cache keys.
const keyPrecision = 1e5

// Cache memoises scores by route geometry. Scores depend only on geometry
// and the model, so entries never expire; a Cache must not outlive the
// model it was filled from. When full the cache is cleared.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Score
	size    int

	hits   uint64
	misses uint64
}

// NewCache creates a cache holding at most size scores.
// A non-positive size selects DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		entries: make(map[string]Score, size),
		size:    size,
	}
}

// Get returns the cached score for a geometry.
func (c *Cache) Get(points []Coordinate) (Score, bool) {
	key := geometryKey(points)

	c.mu.Lock()
	defer c.mu.Unlock()

	score, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return score, ok
}

// Put stores a score for a geometry.
func (c *Cache) Put(points []Coordinate, score Score) {
	key := geometryKey(points)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.size {
		clear(c.entries)
	}
	c.entries[key] = score
}

// CacheStats reports cache usage.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Stats returns current cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

func geometryKey(points []Coordinate) string {
	var b strings.Builder
	b.Grow(len(points) * 20)
	for i, p := range points {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.FormatInt(int64(math.Round(p.Lat*keyPrecision)), 10))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(int64(math.Round(p.Lon*keyPrecision)), 10))
	}
	return b.String()
}
