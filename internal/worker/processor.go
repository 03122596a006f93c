package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ragstore/features/document"
	"ragstore/internal/text"
)

type DocumentStore interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, fragmentCount int) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
}

type FragmentStore interface {
	Save(ctx context.Context, frag *document.Fragment) error
}

// FragmentIndex mirrors persisted fragments into the vector index backing
// the native retrieval strategy. Nil when the in-memory strategy is used.
type FragmentIndex interface {
	StoreFragment(ctx context.Context, frag document.Fragment, documentName, scopeID string) error
}

type BlobReader interface {
	Read(path string) ([]byte, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
}

// Processor runs one document's ingestion to a terminal state: extract,
// chunk, embed, persist. It is invoked once per queued message and never
// cancelled mid-flight; failures are recorded on the document and observed
// by polling.
type Processor struct {
	docs      DocumentStore
	fragments FragmentStore
	index     FragmentIndex
	blobs     BlobReader
	extractor Extractor
	chunker   *text.Chunker
	embedder  Embedder
}

func NewProcessor(docs DocumentStore, fragments FragmentStore, index FragmentIndex,
	blobs BlobReader, extractor Extractor, chunker *text.Chunker, embedder Embedder) *Processor {
	return &Processor{
		docs:      docs,
		fragments: fragments,
		index:     index,
		blobs:     blobs,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
	}
}

// Process drives the PENDING -> PROCESSING -> COMPLETED|FAILED transition
// for a single document. A document that is no longer PENDING is skipped,
// which makes redelivered queue messages harmless.
func (p *Processor) Process(ctx context.Context, documentID string) error {
	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	if doc.Status != document.StatusPending {
		slog.InfoContext(ctx, "skipping document not in pending state",
			"document_id", documentID, "status", doc.Status)
		return nil
	}

	if err := p.docs.MarkProcessing(ctx, documentID); err != nil {
		return err
	}

	data, err := p.blobs.Read(doc.StoragePath)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("failed to read stored upload: %w", err))
	}

	plainText, err := p.extractor.Extract(ctx, data, doc.Filename)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("text extraction failed: %w", err))
	}
	if strings.TrimSpace(plainText) == "" {
		return p.fail(ctx, documentID, fmt.Errorf("text extraction yielded no content"))
	}

	chunks := p.chunker.Chunk(plainText)
	if len(chunks) == 0 {
		return p.fail(ctx, documentID, fmt.Errorf("chunking yielded no fragments"))
	}

	// Fragments are embedded and persisted in order. On failure the
	// already-persisted fragments remain; the document is FAILED and an
	// explicit reprocess clears them before rerunning.
	for _, chunk := range chunks {
		vector, err := p.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return p.fail(ctx, documentID,
				fmt.Errorf("embedding fragment %d failed: %w", chunk.OrderIndex, err))
		}

		frag := document.Fragment{
			DocumentID: documentID,
			OrderIndex: chunk.OrderIndex,
			Content:    chunk.Content,
			TokenCount: chunk.TokenCount,
			Embedding:  vector,
		}
		if err := p.fragments.Save(ctx, &frag); err != nil {
			return p.fail(ctx, documentID,
				fmt.Errorf("persisting fragment %d failed: %w", chunk.OrderIndex, err))
		}
		if p.index != nil {
			if err := p.index.StoreFragment(ctx, frag, doc.Filename, doc.ScopeID); err != nil {
				return p.fail(ctx, documentID,
					fmt.Errorf("indexing fragment %d failed: %w", chunk.OrderIndex, err))
			}
		}
	}

	if err := p.docs.MarkCompleted(ctx, documentID, len(chunks)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "document processed",
		"document_id", documentID, "fragments", len(chunks))
	return nil
}

func (p *Processor) fail(ctx context.Context, documentID string, cause error) error {
	slog.ErrorContext(ctx, "document processing failed",
		"document_id", documentID, "error", cause)
	if err := p.docs.MarkFailed(ctx, documentID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to mark document failed",
			"document_id", documentID, "error", err)
	}
	// The failure is recorded on the document; do not requeue the message.
	return nil
}
