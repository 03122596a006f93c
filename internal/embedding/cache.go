package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache maps content hashes to embedding vectors. Entries are immutable
// once written and live for the process lifetime unless Clear is called.
// It is safe for concurrent use by ingestion workers and the query path.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string][]float32)}
}

// HashText returns the SHA-256 hex digest used as the cache key.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Get(hash string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[hash]
	return v, ok
}

func (c *Cache) Put(hash string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = vector
}

func (c *Cache) Has(hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[hash]
	return ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]float32)
}
