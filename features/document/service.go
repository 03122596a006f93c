package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"ragstore/internal/middleware"
)

// TopicProcess is the NSQ topic carrying per-document processing tasks.
const TopicProcess = "document.process"

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	GetByHashAndScope(ctx context.Context, hash, scopeID string) (*Document, error)
	List(ctx context.Context, scopeID string) ([]Document, error)
	Delete(ctx context.Context, id string) error
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, fragmentCount int) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	ResetPending(ctx context.Context, id string) error
	CountByScope(ctx context.Context, scopeID string) (int, error)
	CountCompletedByScope(ctx context.Context, scopeID string) (int, error)
}

type FragmentRepository interface {
	Save(ctx context.Context, frag *Fragment) error
	ListByDocument(ctx context.Context, documentID string) ([]Fragment, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// BlobStore holds the original upload bytes until processing reads them.
type BlobStore interface {
	Save(hash, filename string, data []byte) (string, error)
	Read(path string) ([]byte, error)
	Delete(path string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// FragmentIndex is the vector-index side of deletion; nil when the
// in-memory retrieval strategy is configured.
type FragmentIndex interface {
	DeleteByDocument(ctx context.Context, documentID string) error
}

// ProcessPayload is the NSQ message scheduling one document's ingestion.
type ProcessPayload struct {
	DocumentID    string `json:"document_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type Service struct {
	repo      Repository
	fragments FragmentRepository
	blobs     BlobStore
	pub       EventPublisher
	index     FragmentIndex

	maxUploadBytes int64
	chunkOverlap   int
}

func NewService(repo Repository, fragments FragmentRepository, blobs BlobStore, pub EventPublisher, index FragmentIndex, maxUploadBytes int64, chunkOverlap int) *Service {
	return &Service{
		repo:           repo,
		fragments:      fragments,
		blobs:          blobs,
		pub:            pub,
		index:          index,
		maxUploadBytes: maxUploadBytes,
		chunkOverlap:   chunkOverlap,
	}
}

// Upload validates and registers a document, then schedules asynchronous
// processing. Identical bytes uploaded twice into the same scope resolve to
// the existing document without new processing.
func (s *Service) Upload(ctx context.Context, data []byte, filename, contentType, scopeID string) (*Document, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Reason: "empty file"}
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, &ValidationError{Reason: fmt.Sprintf("file exceeds %d bytes", s.maxUploadBytes)}
	}
	if !contentTypeAllowed(contentType) {
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported content type %q", contentType)}
	}
	if scopeID == "" {
		return nil, &ValidationError{Reason: "scope id is required"}
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.repo.GetByHashAndScope(ctx, hash, scopeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		slog.InfoContext(ctx, "duplicate upload resolved to existing document",
			"document_id", existing.ID, "scope_id", scopeID)
		return existing, nil
	}

	path, err := s.blobs.Save(hash, filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	doc := &Document{
		ScopeID:     scopeID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		ContentHash: hash,
		Status:      StatusPending,
		StoragePath: path,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		if removeErr := s.blobs.Delete(path); removeErr != nil {
			slog.WarnContext(ctx, "failed to clean up blob after save error", "error", removeErr)
		}
		return nil, err
	}

	s.publishProcess(ctx, doc.ID)
	return doc, nil
}

// Reprocess re-queues a document. For a terminal document, fragments from
// the previous run are removed first so the rerun starts clean; a document
// still pending is simply re-published.
func (s *Service) Reprocess(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == StatusPending {
		// Still pending: the original publish may have been lost, so just
		// re-queue without touching state or fragments.
		s.publishProcess(ctx, id)
		return nil
	}
	if doc.Status != StatusCompleted && doc.Status != StatusFailed {
		return fmt.Errorf("%w: cannot reprocess document in status %s", ErrInvalidTransition, doc.Status)
	}

	if err := s.fragments.DeleteByDocument(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteByDocument(ctx, id); err != nil {
			slog.WarnContext(ctx, "failed to clear vector index before reprocess", "error", err, "document_id", id)
		}
	}
	if err := s.repo.ResetPending(ctx, id); err != nil {
		return err
	}

	s.publishProcess(ctx, id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, scopeID string) ([]Document, error) {
	return s.repo.List(ctx, scopeID)
}

// Delete removes the document, its fragments (cascade), its vector-index
// entries, and best-effort the stored blob.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if s.index != nil {
		if err := s.index.DeleteByDocument(ctx, id); err != nil {
			slog.WarnContext(ctx, "failed to delete fragments from vector index", "error", err, "document_id", id)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if doc.StoragePath != "" {
		if err := s.blobs.Delete(doc.StoragePath); err != nil {
			slog.WarnContext(ctx, "failed to delete stored blob", "error", err, "path", doc.StoragePath)
		}
	}
	return nil
}

// GetContent reconstructs a completed document's normalized text by
// concatenating its fragments in order, stripping the injected overlap.
func (s *Service) GetContent(ctx context.Context, id string) (string, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.Status != StatusCompleted {
		return "", fmt.Errorf("document %s is not completed (status %s)", id, doc.Status)
	}

	frags, err := s.fragments.ListByDocument(ctx, id)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, f := range frags {
		if i == 0 {
			sb.WriteString(f.Content)
			continue
		}
		// The overlap seed is the tail of the previous fragment, capped at
		// its length; strip exactly what was injected.
		strip := s.chunkOverlap
		if prev := len(frags[i-1].Content); prev < strip {
			strip = prev
		}
		if strip > len(f.Content) {
			strip = len(f.Content)
		}
		sb.WriteString(f.Content[strip:])
	}
	return sb.String(), nil
}

// GetAllContent concatenates the reconstructed text of every completed
// document in the scope.
func (s *Service) GetAllContent(ctx context.Context, scopeID string) (string, error) {
	docs, err := s.repo.List(ctx, scopeID)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, d := range docs {
		if d.Status != StatusCompleted {
			continue
		}
		content, err := s.GetContent(ctx, d.ID)
		if err != nil {
			return "", err
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (s *Service) publishProcess(ctx context.Context, documentID string) {
	payload, _ := json.Marshal(ProcessPayload{
		DocumentID:    documentID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(TopicProcess, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish processing task", "error", err, "document_id", documentID)
	} else {
		slog.InfoContext(ctx, "scheduled document processing", "document_id", documentID)
	}
}
