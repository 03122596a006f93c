package document_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragstore/features/document"
)

var documentRows = []string{"id", "scope_id", "filename", "content_type", "size_bytes",
	"content_hash", "status", "fragment_count", "coalesce", "coalesce", "created_at", "processed_at"}

func addDocumentRow(rows *sqlmock.Rows, id string, status document.Status) *sqlmock.Rows {
	return rows.AddRow(id, "scope-1", "notes.txt", "text/plain", int64(42),
		"hash", status, 0, "", "/uploads/x", time.Now(), nil)
}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	doc := &document.Document{
		ScopeID:     "scope-1",
		Filename:    "notes.txt",
		ContentType: "text/plain",
		SizeBytes:   42,
		ContentHash: "hash",
		Status:      document.StatusPending,
		StoragePath: "/uploads/x",
	}

	mock.ExpectQuery("INSERT INTO documents").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	require.NoError(t, repo.Save(context.Background(), doc))
	assert.NotEmpty(t, doc.ID, "save assigns an id when none is set")
	assert.False(t, doc.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM documents WHERE id").
			WithArgs("doc-1").
			WillReturnRows(addDocumentRow(sqlmock.NewRows(documentRows), "doc-1", document.StatusCompleted))

		doc, err := repo.Get(context.Background(), "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "doc-1", doc.ID)
		assert.Equal(t, document.StatusCompleted, doc.Status)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM documents WHERE id").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(documentRows))

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, document.ErrNotFound)
	})
}

func TestPostgresRepo_GetByHashAndScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("absent is not an error", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM documents WHERE content_hash").
			WithArgs("hash", "scope-1").
			WillReturnRows(sqlmock.NewRows(documentRows))

		doc, err := repo.GetByHashAndScope(context.Background(), "hash", "scope-1")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("present", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM documents WHERE content_hash").
			WithArgs("hash", "scope-1").
			WillReturnRows(addDocumentRow(sqlmock.NewRows(documentRows), "doc-1", document.StatusPending))

		doc, err := repo.GetByHashAndScope(context.Background(), "hash", "scope-1")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "doc-1", doc.ID)
	})
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("deletes", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
			WithArgs("doc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), "doc-1"))
	})

	t.Run("missing row", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), document.ErrNotFound)
	})
}

func TestPostgresRepo_StatusTransitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("pending to processing", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs(document.StatusProcessing, "doc-1", document.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkProcessing(context.Background(), "doc-1"))
	})

	t.Run("guarded transition rejects wrong prior state", func(t *testing.T) {
		// Zero rows affected means the WHERE status clause did not match.
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs(document.StatusProcessing, "doc-1", document.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkProcessing(context.Background(), "doc-1")
		assert.ErrorIs(t, err, document.ErrInvalidTransition)
	})

	t.Run("processing to completed", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs(document.StatusCompleted, 7, "doc-1", document.StatusProcessing).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkCompleted(context.Background(), "doc-1", 7))
	})

	t.Run("processing to failed", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs(document.StatusFailed, "boom", "doc-1", document.StatusProcessing).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkFailed(context.Background(), "doc-1", "boom"))
	})

	t.Run("terminal back to pending", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs(document.StatusPending, "doc-1", document.StatusCompleted, document.StatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.ResetPending(context.Background(), "doc-1"))
	})
}

func TestPostgresRepo_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("by scope", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("scope-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		count, err := repo.CountByScope(context.Background(), "scope-1")
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})

	t.Run("completed by scope", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("scope-1", document.StatusCompleted).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		count, err := repo.CountCompletedByScope(context.Background(), "scope-1")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("grouped by status", func(t *testing.T) {
		mock.ExpectQuery("SELECT status, COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
				AddRow("completed", 3).
				AddRow("failed", 1))

		counts, err := repo.CountByStatus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, counts[document.StatusCompleted])
		assert.Equal(t, 1, counts[document.StatusFailed])
		assert.Zero(t, counts[document.StatusPending])
	})
}

func TestPostgresRepo_CompletedIDsByScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectQuery("SELECT id FROM documents").
		WithArgs("scope-1", document.StatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1").AddRow("doc-2"))

	ids, err := repo.CompletedIDsByScope(context.Background(), "scope-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, ids)
}
