package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const documentColumns = `id, scope_id, filename, content_type, size_bytes, content_hash,
	status, fragment_count, COALESCE(error_message, ''), COALESCE(storage_path, ''),
	created_at, processed_at`

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	query := `INSERT INTO documents (id, scope_id, filename, content_type, size_bytes, content_hash, status, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	return r.db.QueryRowContext(ctx, query,
		doc.ID, doc.ScopeID, doc.Filename, doc.ContentType, doc.SizeBytes,
		doc.ContentHash, doc.Status, doc.StoragePath).Scan(&doc.CreatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// GetByHashAndScope returns nil without error when no document matches;
// absence is the expected case on a fresh upload.
func (r *PostgresRepo) GetByHashAndScope(ctx context.Context, hash, scopeID string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = $1 AND scope_id = $2`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, hash, scopeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (r *PostgresRepo) List(ctx context.Context, scopeID string) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE scope_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Status transitions are single conditional updates so observers can never
// see a state the machine does not allow.

func (r *PostgresRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, id,
		`UPDATE documents SET status = $1 WHERE id = $2 AND status = $3`,
		StatusProcessing, id, StatusPending)
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string, fragmentCount int) error {
	return r.transition(ctx, id,
		`UPDATE documents SET status = $1, fragment_count = $2, error_message = NULL, processed_at = NOW()
		 WHERE id = $3 AND status = $4`,
		StatusCompleted, fragmentCount, id, StatusProcessing)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, errorMessage string) error {
	return r.transition(ctx, id,
		`UPDATE documents SET status = $1, error_message = $2, processed_at = NOW()
		 WHERE id = $3 AND status = $4`,
		StatusFailed, errorMessage, id, StatusProcessing)
}

// ResetPending returns a terminal document to PENDING for an explicit
// reprocess run.
func (r *PostgresRepo) ResetPending(ctx context.Context, id string) error {
	return r.transition(ctx, id,
		`UPDATE documents SET status = $1, fragment_count = 0, error_message = NULL, processed_at = NULL
		 WHERE id = $2 AND status IN ($3, $4)`,
		StatusPending, id, StatusCompleted, StatusFailed)
}

func (r *PostgresRepo) transition(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: document %s", ErrInvalidTransition, id)
	}
	return nil
}

func (r *PostgresRepo) CountByScope(ctx context.Context, scopeID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE scope_id = $1`, scopeID).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountCompletedByScope(ctx context.Context, scopeID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE scope_id = $1 AND status = $2`,
		scopeID, StatusCompleted).Scan(&count)
	return count, err
}

// CompletedIDsByScope feeds the native retrieval strategy's status filter.
func (r *PostgresRepo) CompletedIDsByScope(ctx context.Context, scopeID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE scope_id = $1 AND status = $2`,
		scopeID, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var processedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.ScopeID, &doc.Filename, &doc.ContentType,
		&doc.SizeBytes, &doc.ContentHash, &doc.Status, &doc.FragmentCount,
		&doc.ErrorMessage, &doc.StoragePath, &doc.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		doc.ProcessedAt = &processedAt.Time
	}
	return &doc, nil
}
