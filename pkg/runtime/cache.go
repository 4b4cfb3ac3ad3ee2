package runtime

import (
	"sort"
	"sync"

	"github.com/ritzau/hesiod/pkg/value"
)

type cacheEntry struct {
	signature Signature
	outputs   map[string]value.Value
}

// Cache memoizes node outputs by node key together with the signature they
// were computed under. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Store replaces the entry for key. A nil outputs map records the signature
// alone, which a later reuse reports as corruption.
func (c *Cache) Store(key string, sig Signature, outputs map[string]value.Value) {
	var cp map[string]value.Value
	if outputs != nil {
		cp = make(map[string]value.Value, len(outputs))
		for port, v := range outputs {
			cp[port] = v
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{signature: sig, outputs: cp}
}

// Outputs returns a copy of the stored outputs for key
func (c *Cache) Outputs(key string) (map[string]value.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.outputs == nil {
		return nil, false
	}
	cp := make(map[string]value.Value, len(entry.outputs))
	for port, v := range entry.outputs {
		cp[port] = v
	}
	return cp, true
}

// Signature returns the signature stored for key
func (c *Cache) Signature(key string) (Signature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry.signature, ok
}

// IsValid reports whether key has an entry computed under exactly sig
func (c *Cache) IsValid(key string, sig Signature) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return ok && entry.signature == sig
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the cached node keys, sorted
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
