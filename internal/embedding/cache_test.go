package embedding

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashText(t *testing.T) {
	h1 := HashText("hello")
	h2 := HashText("hello")
	h3 := HashText("hello ")

	assert.Equal(t, h1, h2, "hashing is deterministic")
	assert.NotEqual(t, h1, h3, "whitespace changes the content hash")
	assert.Len(t, h1, 64)
}

func TestCache_PutGet(t *testing.T) {
	cache := NewCache()
	hash := HashText("some text")

	_, ok := cache.Get(hash)
	assert.False(t, ok)

	cache.Put(hash, []float32{1, 2, 3})

	v, ok := cache.Get(hash)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.True(t, cache.Has(hash))
	assert.Equal(t, 1, cache.Len())
}

func TestCache_Clear(t *testing.T) {
	cache := NewCache()
	cache.Put("a", []float32{1})
	cache.Put("b", []float32{2})

	cache.Clear()
	assert.Zero(t, cache.Len())
	assert.False(t, cache.Has("a"))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cache.Put(HashText("shared"), []float32{1})
		}()
		go func() {
			defer wg.Done()
			cache.Get(HashText("shared"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, cache.Len())
}
