package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotConfigured is returned when no embedding client is available,
	// typically because the provider API key is missing. Never retried.
	ErrNotConfigured = errors.New("embedding provider not configured")

	// ErrInvalidCredentials marks a rejected API key. Never retried.
	ErrInvalidCredentials = errors.New("embedding provider rejected credentials")

	ErrEmptyText = errors.New("cannot embed empty text")
)

// Error is the terminal failure returned after retries are exhausted.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client performs the actual external embedding call.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Stats exposes the provider's observability counters.
type Stats struct {
	Requests  int64 `json:"requests"`
	CacheHits int64 `json:"cache_hits"`
	APICalls  int64 `json:"api_calls"`
	APIErrors int64 `json:"api_errors"`
	CacheSize int   `json:"cache_size"`
}

// Provider converts text to fixed-dimension vectors through an external
// API, backed by a shared content-hash cache. Concurrent requests for the
// same text are coalesced into a single external call.
type Provider struct {
	client     Client
	cache      *Cache
	maxRetries int
	timeout    time.Duration

	// backoffBase is 1s in production so the delay between attempts is
	// 2^(attempt-1) seconds; tests shrink it.
	backoffBase time.Duration

	sf        singleflight.Group
	dimension atomic.Int64

	requests  atomic.Int64
	cacheHits atomic.Int64
	apiCalls  atomic.Int64
	apiErrors atomic.Int64
}

func NewProvider(client Client, cache *Cache, maxRetries int, timeout time.Duration) *Provider {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Provider{
		client:      client,
		cache:       cache,
		maxRetries:  maxRetries,
		timeout:     timeout,
		backoffBase: time.Second,
	}
}

// Embed returns the embedding vector for text, serving it from the cache
// when the content hash is already known.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if p.client == nil {
		return nil, ErrNotConfigured
	}

	p.requests.Add(1)
	hash := HashText(text)
	if v, ok := p.cache.Get(hash); ok {
		p.cacheHits.Add(1)
		return v, nil
	}

	v, err, shared := p.sf.Do(hash, func() (interface{}, error) {
		return p.callWithRetry(ctx, hash, text)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		// Coalesced onto another caller's in-flight request; no extra
		// network cost was incurred.
		p.cacheHits.Add(1)
	}
	return v.([]float32), nil
}

// EmbedBatch embeds each text in order, reusing cached vectors per item.
// The output preserves input order; the first failure aborts the batch.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// HasCached reports whether a vector for the given content hash is cached.
func (p *Provider) HasCached(hash string) bool {
	return p.cache.Has(hash)
}

func (p *Provider) CacheStats() Stats {
	return Stats{
		Requests:  p.requests.Load(),
		CacheHits: p.cacheHits.Load(),
		APICalls:  p.apiCalls.Load(),
		APIErrors: p.apiErrors.Load(),
		CacheSize: p.cache.Len(),
	}
}

// Dimension returns the vector dimensionality observed on the first
// successful call, or 0 before any call succeeded.
func (p *Provider) Dimension() int {
	return int(p.dimension.Load())
}

func (p *Provider) callWithRetry(ctx context.Context, hash, text string) ([]float32, error) {
	// Double-check under the flight group: a caller that lost the race to
	// an already-completed flight must not trigger a second API call.
	if v, ok := p.cache.Get(hash); ok {
		p.cacheHits.Add(1)
		return v, nil
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		vector, err := p.client.Embed(callCtx, text)
		cancel()
		p.apiCalls.Add(1)

		if err == nil {
			if len(vector) == 0 {
				err = errors.New("provider returned an empty vector")
			} else if dim := p.dimension.Load(); dim == 0 {
				p.dimension.CompareAndSwap(0, int64(len(vector)))
			} else if int(dim) != len(vector) {
				err = fmt.Errorf("vector dimension %d does not match expected %d", len(vector), dim)
			}
		}
		if err == nil {
			p.cache.Put(hash, vector)
			return vector, nil
		}

		p.apiErrors.Add(1)
		lastErr = err

		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrNotConfigured) {
			return nil, err
		}
		if attempt < p.maxRetries {
			delay := p.backoffBase << (attempt - 1)
			slog.WarnContext(ctx, "embedding call failed, backing off",
				"attempt", attempt, "max_retries", p.maxRetries, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Attempts: attempt, Err: ctx.Err()}
			}
		}
	}
	return nil, &Error{Attempts: p.maxRetries, Err: lastErr}
}
