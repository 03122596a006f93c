package document

import (
	"errors"
	"fmt"
	"time"
)

// Status is the document lifecycle state. Transitions go strictly
// PENDING -> PROCESSING -> COMPLETED | FAILED; the terminal states are
// never left.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Document is an uploaded file tracked through ingestion. It is owned by
// the ingestion pipeline and mutated only through status transitions.
type Document struct {
	ID            string     `json:"id"`
	ScopeID       string     `json:"scope_id"`
	Filename      string     `json:"filename"`
	ContentType   string     `json:"content_type"`
	SizeBytes     int64      `json:"size_bytes"`
	ContentHash   string     `json:"-"`
	Status        Status     `json:"status"`
	FragmentCount int        `json:"fragment_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StoragePath   string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

// Fragment is a persisted chunk of a document's text. It references its
// owning document by id only; the parent is looked up when needed.
type Fragment struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	OrderIndex int       `json:"order_index"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
}

var (
	ErrNotFound          = errors.New("document not found")
	ErrInvalidTransition = errors.New("invalid document status transition")
)

// ValidationError rejects an upload synchronously, before any processing is
// scheduled.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid upload: %s", e.Reason)
}

// allowedContentTypes is the upload allow-list. Extraction of anything
// beyond plain text is delegated to the docling collaborator.
var allowedContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain":    true,
	"text/markdown": true,
	"text/html":     true,
	"text/csv":      true,
}

func contentTypeAllowed(contentType string) bool {
	return allowedContentTypes[contentType]
}
