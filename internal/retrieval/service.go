package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetrievedFragment is one search hit, ordered most relevant first.
type RetrievedFragment struct {
	DocumentID    string  `json:"document_id"`
	DocumentName  string  `json:"document_name"`
	FragmentOrder int     `json:"fragment_order"`
	Content       string  `json:"content"`
	Similarity    float32 `json:"similarity"`
}

// Citation links a context block back to its source document and fragment.
// Indices are 1-based and align with BuildContext block numbering.
type Citation struct {
	Index         int    `json:"index"`
	DocumentID    string `json:"document_id"`
	DocumentName  string `json:"document_name"`
	FragmentOrder int    `json:"fragment_order"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Strategy selects the most relevant fragments for a query vector within a
// scope. The implementation is fixed at construction time: native vector
// search when the index supports it, in-process cosine ranking otherwise.
type Strategy interface {
	Search(ctx context.Context, scopeID string, vector []float32) ([]RetrievedFragment, error)
}

type DocumentCounter interface {
	CountCompletedByScope(ctx context.Context, scopeID string) (int, error)
}

type Service struct {
	docs     DocumentCounter
	embedder Embedder
	strategy Strategy
	logger   *QueryLogger
}

func NewService(docs DocumentCounter, embedder Embedder, strategy Strategy, logger *QueryLogger) *Service {
	return &Service{docs: docs, embedder: embedder, strategy: strategy, logger: logger}
}

// FindRelevant returns the most relevant fragments for the query within the
// scope. Retrieval never fails the caller: any error along the way degrades
// to an empty result, since absence of context is a valid outcome.
func (s *Service) FindRelevant(ctx context.Context, query, scopeID string) []RetrievedFragment {
	start := time.Now()

	// Skip the embedding call entirely when the scope has nothing to search.
	count, err := s.docs.CountCompletedByScope(ctx, scopeID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents for retrieval", "error", err, "scope_id", scopeID)
		return nil
	}
	if count == 0 {
		return nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.WarnContext(ctx, "query embedding failed, returning no context", "error", err)
		return nil
	}

	results, err := s.strategy.Search(ctx, scopeID, vector)
	if err != nil {
		slog.WarnContext(ctx, "fragment search failed, returning no context", "error", err)
		return nil
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:      query,
			ScopeID:    scopeID,
			NumResults: len(results),
			Duration:   time.Since(start),
		})
	}
	return results
}

// HasDocuments reports whether the scope has any completed documents.
func (s *Service) HasDocuments(ctx context.Context, scopeID string) bool {
	count, err := s.docs.CountCompletedByScope(ctx, scopeID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err, "scope_id", scopeID)
		return false
	}
	return count > 0
}

// BuildContext renders the fragments as numbered source blocks for the
// downstream generation consumer.
func BuildContext(fragments []RetrievedFragment) string {
	var sb strings.Builder
	for i, f := range fragments {
		fmt.Fprintf(&sb, "[Source %d: %s]\n%s\n\n", i+1, f.DocumentName, f.Content)
	}
	return sb.String()
}

// BuildCitations produces one citation per fragment, indices matching the
// context block numbering exactly.
func BuildCitations(fragments []RetrievedFragment) []Citation {
	citations := make([]Citation, 0, len(fragments))
	for i, f := range fragments {
		citations = append(citations, Citation{
			Index:         i + 1,
			DocumentID:    f.DocumentID,
			DocumentName:  f.DocumentName,
			FragmentOrder: f.FragmentOrder,
		})
	}
	return citations
}
