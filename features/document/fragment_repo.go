package document

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EmbeddedFragment is a fragment joined with its owning document's name,
// as needed by the in-memory retrieval strategy.
type EmbeddedFragment struct {
	Fragment
	DocumentName string
}

type PostgresFragmentRepo struct {
	db *sql.DB
}

func NewPostgresFragmentRepo(db *sql.DB) *PostgresFragmentRepo {
	return &PostgresFragmentRepo{db: db}
}

func (r *PostgresFragmentRepo) Save(ctx context.Context, frag *Fragment) error {
	if frag.ID == "" {
		frag.ID = uuid.New().String()
	}
	query := `INSERT INTO fragments (id, document_id, order_index, content, token_count, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query,
		frag.ID, frag.DocumentID, frag.OrderIndex, frag.Content, frag.TokenCount,
		pq.Array(toFloat64(frag.Embedding)))
	return err
}

func (r *PostgresFragmentRepo) ListByDocument(ctx context.Context, documentID string) ([]Fragment, error) {
	query := `SELECT id, document_id, order_index, content, token_count, embedding
		FROM fragments WHERE document_id = $1 ORDER BY order_index ASC`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frags []Fragment
	for rows.Next() {
		var f Fragment
		var embedding []float64
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.OrderIndex, &f.Content,
			&f.TokenCount, pq.Array(&embedding)); err != nil {
			return nil, err
		}
		f.Embedding = toFloat32(embedding)
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

// ListEmbeddedByScope returns every embedded fragment belonging to a
// completed document in the scope, in document/order sequence. This is the
// working set of the in-memory retrieval strategy.
func (r *PostgresFragmentRepo) ListEmbeddedByScope(ctx context.Context, scopeID string) ([]EmbeddedFragment, error) {
	query := `SELECT f.id, f.document_id, f.order_index, f.content, f.token_count, f.embedding, d.filename
		FROM fragments f
		JOIN documents d ON d.id = f.document_id
		WHERE d.scope_id = $1 AND d.status = $2 AND f.embedding IS NOT NULL
		ORDER BY d.created_at ASC, f.order_index ASC`
	rows, err := r.db.QueryContext(ctx, query, scopeID, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frags []EmbeddedFragment
	for rows.Next() {
		var f EmbeddedFragment
		var embedding []float64
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.OrderIndex, &f.Content,
			&f.TokenCount, pq.Array(&embedding), &f.DocumentName); err != nil {
			return nil, err
		}
		f.Embedding = toFloat32(embedding)
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

func (r *PostgresFragmentRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = $1`, documentID)
	return err
}

func (r *PostgresFragmentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&count)
	return count, err
}

// pq maps double precision[] to []float64; embeddings travel as []float32
// everywhere else.

func toFloat64(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
