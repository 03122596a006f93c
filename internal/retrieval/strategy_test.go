package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragstore/features/document"
)

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		v := []float32{0.5, 0.5, 0.5}
		assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	})

	t.Run("opposite vectors", func(t *testing.T) {
		assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	})

	t.Run("zero norm yields zero", func(t *testing.T) {
		assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	})
}

type stubFragmentLister struct {
	frags []document.EmbeddedFragment
	err   error
}

func (s *stubFragmentLister) ListEmbeddedByScope(ctx context.Context, scopeID string) ([]document.EmbeddedFragment, error) {
	return s.frags, s.err
}

func embeddedFrag(docID string, order int, content string, embedding []float32) document.EmbeddedFragment {
	return document.EmbeddedFragment{
		Fragment: document.Fragment{
			DocumentID: docID,
			OrderIndex: order,
			Content:    content,
			Embedding:  embedding,
		},
		DocumentName: docID + ".txt",
	}
}

func TestMemoryStrategy_RanksBySimilarity(t *testing.T) {
	lister := &stubFragmentLister{frags: []document.EmbeddedFragment{
		embeddedFrag("a", 0, "weak match", []float32{0.2, 0.98}),
		embeddedFrag("b", 1, "strong match", []float32{0.99, 0.1}),
		embeddedFrag("c", 2, "medium match", []float32{0.7, 0.7}),
	}}

	s := NewMemoryStrategy(lister, 2)

	results, err := s.Search(context.Background(), "scope-1", []float32{1, 0})
	require.NoError(t, err)

	require.Len(t, results, 2, "top-k caps the result set")
	assert.Equal(t, "strong match", results[0].Content)
	assert.Equal(t, "medium match", results[1].Content)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
	assert.Equal(t, "b.txt", results[0].DocumentName)
}

func TestMemoryStrategy_IgnoresDistanceThreshold(t *testing.T) {
	// Even a barely related fragment is returned; the memory strategy ranks
	// everything and trusts top-k alone.
	lister := &stubFragmentLister{frags: []document.EmbeddedFragment{
		embeddedFrag("a", 0, "barely related", []float32{-0.9, 0.1}),
	}}

	s := NewMemoryStrategy(lister, 5)

	results, err := s.Search(context.Background(), "scope-1", []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Less(t, results[0].Similarity, float32(0))
}

func TestMemoryStrategy_EmptyScope(t *testing.T) {
	s := NewMemoryStrategy(&stubFragmentLister{}, 5)

	results, err := s.Search(context.Background(), "scope-1", []float32{1, 0})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStrategy_ListError(t *testing.T) {
	s := NewMemoryStrategy(&stubFragmentLister{err: errors.New("db down")}, 5)

	_, err := s.Search(context.Background(), "scope-1", []float32{1, 0})
	assert.Error(t, err)
}

type stubNeighborIndex struct {
	results    []RetrievedFragment
	err        error
	gotScope   string
	gotLimit   int
	gotMaxDist float32
	gotIDs     []string
	called     bool
}

func (s *stubNeighborIndex) NearestNeighbors(ctx context.Context, scopeID string, vector []float32,
	maxDistance float32, limit int, documentIDs []string) ([]RetrievedFragment, error) {
	s.called = true
	s.gotScope = scopeID
	s.gotLimit = limit
	s.gotMaxDist = maxDistance
	s.gotIDs = documentIDs
	return s.results, s.err
}

type stubCompletedLister struct {
	ids []string
	err error
}

func (s *stubCompletedLister) CompletedIDsByScope(ctx context.Context, scopeID string) ([]string, error) {
	return s.ids, s.err
}

func TestNativeStrategy_DelegatesToIndex(t *testing.T) {
	index := &stubNeighborIndex{results: []RetrievedFragment{{Content: "hit", Similarity: 0.9}}}
	docs := &stubCompletedLister{ids: []string{"doc-1", "doc-2"}}

	s := NewNativeStrategy(index, docs, 5, 0.5)

	results, err := s.Search(context.Background(), "scope-1", []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "scope-1", index.gotScope)
	assert.Equal(t, 5, index.gotLimit)
	assert.Equal(t, float32(0.5), index.gotMaxDist)
	assert.Equal(t, []string{"doc-1", "doc-2"}, index.gotIDs)
}

func TestNativeStrategy_NoCompletedDocuments(t *testing.T) {
	index := &stubNeighborIndex{}
	s := NewNativeStrategy(index, &stubCompletedLister{}, 5, 0.5)

	results, err := s.Search(context.Background(), "scope-1", []float32{1, 0})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, index.called, "index must not be queried for an empty scope")
}
