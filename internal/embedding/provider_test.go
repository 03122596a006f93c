package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	vector   []float32
}

func (s *stubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, s.err
	}
	if s.vector != nil {
		return s.vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestProvider(c Client, maxRetries int) *Provider {
	p := NewProvider(c, NewCache(), maxRetries, time.Second)
	p.backoffBase = time.Millisecond
	return p
}

func TestEmbed_EmptyText(t *testing.T) {
	p := newTestProvider(&stubClient{}, 3)
	_, err := p.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbed_NotConfigured(t *testing.T) {
	p := newTestProvider(nil, 3)
	_, err := p.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEmbed_CacheIdempotence(t *testing.T) {
	stub := &stubClient{}
	p := newTestProvider(stub, 3)

	v1, err := p.Embed(context.Background(), "same text")
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, stub.callCount())

	stats := p.CacheStats()
	assert.Equal(t, int64(2), stats.Requests)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.APICalls)
	assert.Equal(t, 1, stats.CacheSize)
	assert.True(t, p.HasCached(HashText("same text")))
}

func TestEmbed_ConcurrentDeduplication(t *testing.T) {
	stub := &stubClient{}
	p := newTestProvider(stub, 3)

	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Embed(context.Background(), "x"); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failed.Load())
	assert.Equal(t, 1, stub.callCount(), "concurrent identical requests must coalesce")
	stats := p.CacheStats()
	assert.Equal(t, int64(5), stats.Requests)
	assert.Equal(t, int64(4), stats.CacheHits)
}

func TestEmbed_RetryThenSuccess(t *testing.T) {
	stub := &stubClient{failures: 2, err: errors.New("transient")}
	p := newTestProvider(stub, 5)

	v, err := p.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Len(t, v, 3)
	assert.Equal(t, 3, stub.callCount(), "k failures then success means k+1 attempts")
	assert.Equal(t, int64(2), p.CacheStats().APIErrors)
}

func TestEmbed_RetriesExhausted(t *testing.T) {
	cause := errors.New("provider down")
	stub := &stubClient{failures: 100, err: cause}
	p := newTestProvider(stub, 3)

	_, err := p.Embed(context.Background(), "doomed")
	require.Error(t, err)

	var termErr *Error
	require.ErrorAs(t, err, &termErr)
	assert.Equal(t, 3, termErr.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, stub.callCount(), "exactly maxRetries attempts")
}

func TestEmbed_InvalidCredentialsNotRetried(t *testing.T) {
	stub := &stubClient{failures: 100, err: ErrInvalidCredentials}
	p := newTestProvider(stub, 5)

	_, err := p.Embed(context.Background(), "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, stub.callCount(), "credential errors must fail immediately")
}

func TestEmbed_DimensionEnforced(t *testing.T) {
	stub := &stubClient{}
	p := newTestProvider(stub, 1)

	_, err := p.Embed(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Dimension())

	stub.mu.Lock()
	stub.vector = []float32{1, 2}
	stub.mu.Unlock()

	_, err = p.Embed(context.Background(), "second")
	assert.Error(t, err)
}

func TestEmbedBatch_PreservesOrderAndCache(t *testing.T) {
	stub := &stubClient{}
	p := newTestProvider(stub, 3)

	texts := []string{"alpha", "beta", "alpha"}
	vectors, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, vectors[0], vectors[2])
	assert.Equal(t, 2, stub.callCount(), "duplicate batch items served from cache")
}

func TestEmbedBatch_FailureAborts(t *testing.T) {
	stub := &stubClient{failures: 100, err: errors.New("down")}
	p := newTestProvider(stub, 2)

	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestCache_ClearViaProvider(t *testing.T) {
	c := NewCache()
	c.Put(HashText("a"), []float32{1})
	require.Equal(t, 1, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Has(HashText("a")))
}
