package route

import (
	"sync"

	"github.com/taskfleet/taskfleet/internal/domain/dispatch"
)

// decisionCache is a bounded insertion-ordered map of routing decisions.
// At capacity it drops the oldest half of entries in one sweep. This is
// deliberately not an LRU: the half-clear keeps eviction O(1) amortized
// and the routing contract only needs the cache to stay bounded.
type decisionCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]dispatch.Decision
	order    []string
}

func newDecisionCache(capacity int) *decisionCache {
	if capacity < 2 {
		capacity = 2
	}
	return &decisionCache{
		capacity: capacity,
		entries:  make(map[string]dispatch.Decision, capacity),
	}
}

func (c *decisionCache) get(key string) (dispatch.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[key]
	return d, ok
}

func (c *decisionCache) put(key string, d dispatch.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = d
		return
	}

	if len(c.entries) >= c.capacity {
		half := len(c.order) / 2
		for _, old := range c.order[:half] {
			delete(c.entries, old)
		}
		c.order = append(c.order[:0], c.order[half:]...)
	}

	c.entries[key] = d
	c.order = append(c.order, key)
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
