package retrieval

import (
	"context"
	"math"
	"sort"

	"ragstore/features/document"
)

// NearestNeighborIndex is the native vector-search capability of the
// storage layer (Weaviate). Results come back sorted by ascending distance.
type NearestNeighborIndex interface {
	NearestNeighbors(ctx context.Context, scopeID string, vector []float32,
		maxDistance float32, limit int, documentIDs []string) ([]RetrievedFragment, error)
}

type CompletedDocumentLister interface {
	CompletedIDsByScope(ctx context.Context, scopeID string) ([]string, error)
}

// NativeStrategy delegates ranking to the storage layer's nearest-neighbor
// query, restricted to fragments of completed documents and bounded by a
// cosine-distance threshold.
type NativeStrategy struct {
	index       NearestNeighborIndex
	docs        CompletedDocumentLister
	topK        int
	maxDistance float32
}

func NewNativeStrategy(index NearestNeighborIndex, docs CompletedDocumentLister, topK int, maxDistance float32) *NativeStrategy {
	return &NativeStrategy{index: index, docs: docs, topK: topK, maxDistance: maxDistance}
}

func (s *NativeStrategy) Search(ctx context.Context, scopeID string, vector []float32) ([]RetrievedFragment, error) {
	ids, err := s.docs.CompletedIDsByScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.index.NearestNeighbors(ctx, scopeID, vector, s.maxDistance, s.topK, ids)
}

type EmbeddedFragmentLister interface {
	ListEmbeddedByScope(ctx context.Context, scopeID string) ([]document.EmbeddedFragment, error)
}

// MemoryStrategy loads every embedded fragment of the scope's completed
// documents and ranks them by cosine similarity in-process. Used when the
// storage layer has no native vector search; the distance threshold is
// deliberately not applied.
type MemoryStrategy struct {
	fragments EmbeddedFragmentLister
	topK      int
}

func NewMemoryStrategy(fragments EmbeddedFragmentLister, topK int) *MemoryStrategy {
	return &MemoryStrategy{fragments: fragments, topK: topK}
}

func (s *MemoryStrategy) Search(ctx context.Context, scopeID string, vector []float32) ([]RetrievedFragment, error) {
	frags, err := s.fragments.ListEmbeddedByScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	results := make([]RetrievedFragment, 0, len(frags))
	for _, f := range frags {
		results = append(results, RetrievedFragment{
			DocumentID:    f.DocumentID,
			DocumentName:  f.DocumentName,
			FragmentOrder: f.OrderIndex,
			Content:       f.Content,
			Similarity:    CosineSimilarity(vector, f.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > s.topK {
		results = results[:s.topK]
	}
	return results, nil
}

// CosineSimilarity is dot(a,b) / (|a|*|b|); a zero-norm vector yields 0.
func CosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
