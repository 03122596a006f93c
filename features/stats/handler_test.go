package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragstore/features/document"
	"ragstore/internal/embedding"
)

type stubDocCounter struct {
	counts map[document.Status]int
	err    error
}

func (s *stubDocCounter) CountByStatus(ctx context.Context) (map[document.Status]int, error) {
	return s.counts, s.err
}

type stubFragCounter struct {
	count int
	err   error
}

func (s *stubFragCounter) Count(ctx context.Context) (int, error) {
	return s.count, s.err
}

type stubEmbedderStats struct {
	stats embedding.Stats
	dim   int
}

func (s *stubEmbedderStats) CacheStats() embedding.Stats { return s.stats }
func (s *stubEmbedderStats) Dimension() int              { return s.dim }

func TestGet_ReportsPipelineCounters(t *testing.T) {
	h := NewHandler(
		&stubDocCounter{counts: map[document.Status]int{
			document.StatusPending:   1,
			document.StatusCompleted: 3,
			document.StatusFailed:    2,
		}},
		&stubFragCounter{count: 42},
		&stubEmbedderStats{
			stats: embedding.Stats{Requests: 50, CacheHits: 8, APICalls: 42, APIErrors: 1, CacheSize: 40},
			dim:   768,
		},
	)

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 1, body.Data.Documents.Pending)
	assert.Equal(t, 3, body.Data.Documents.Completed)
	assert.Equal(t, 2, body.Data.Documents.Failed)
	assert.Equal(t, 6, body.Data.Documents.Total)
	assert.Equal(t, 42, body.Data.Fragments.Total)
	assert.Equal(t, int64(8), body.Data.Embedding.CacheHits)
	assert.Equal(t, int64(42), body.Data.Embedding.APICalls)
	assert.Equal(t, 768, body.Data.Embedding.Dimension)
}

func TestGet_CountFailure(t *testing.T) {
	h := NewHandler(&stubDocCounter{err: errors.New("db down")}, &stubFragCounter{}, &stubEmbedderStats{})

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
