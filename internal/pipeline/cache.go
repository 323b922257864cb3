package pipeline

import (
	"container/list"
	"sync"
)

// ProbabilityCache is an LRU cache of calibrated probability vectors keyed by
// image content hash.
type ProbabilityCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float64
}

// NewProbabilityCache creates a cache holding up to capacity entries.
// capacity <= 0 disables caching.
func NewProbabilityCache(capacity int) *ProbabilityCache {
	return &ProbabilityCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns a copy of the cached vector for key.
func (c *ProbabilityCache) Get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return append([]float64(nil), elem.Value.(*cacheEntry).value...), true
	}
	return nil, false
}

// Set stores value for key, evicting the least recently used entry when full.
func (c *ProbabilityCache) Set(key string, value []float64) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	value = append([]float64(nil), value...)
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	c.cache[key] = c.lru.PushFront(&cacheEntry{key: key, value: value})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *ProbabilityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
