package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

// RegisterOrReuse inserts a new pending document for the checksum, or
// returns the existing one. The unique constraint on checksum serializes
// concurrent identical uploads: the loser of the race falls through to the
// re-select and reuses.
func (c *DatabaseClient) RegisterOrReuse(ctx context.Context, checksum, contentKey, fileName string, sizeBytes int64) (*models.Document, bool, error) {
	now := time.Now().UTC()
	doc := models.Document{
		ID:         uuid.NewString(),
		Checksum:   checksum,
		ContentKey: contentKey,
		FileName:   fileName,
		SizeBytes:  sizeBytes,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	const ins = `
		INSERT INTO documents (id, checksum, content_key, file_name, size_bytes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (checksum) DO NOTHING
	`
	res, err := c.db.ExecContext(ctx, ins,
		doc.ID, doc.Checksum, doc.ContentKey, doc.FileName, doc.SizeBytes, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("register document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return &doc, true, nil
	}

	existing, err := c.FindByChecksum(ctx, checksum)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (c *DatabaseClient) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, checksum, content_key, file_name, size_bytes, status, created_at, updated_at
		FROM documents WHERE id = $1
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) FindByChecksum(ctx context.Context, checksum string) (*models.Document, error) {
	const q = `
		SELECT id, checksum, content_key, file_name, size_bytes, status, created_at, updated_at
		FROM documents WHERE checksum = $1
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, checksum))
}

func (c *DatabaseClient) GetDocuments(ctx context.Context, ids []string) ([]models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, checksum, content_key, file_name, size_bytes, status, created_at, updated_at
		FROM documents WHERE id = ANY($1)
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (c *DatabaseClient) ListByStatus(ctx context.Context, status models.DocumentStatus, limit int) ([]models.Document, error) {
	const q = `
		SELECT id, checksum, content_key, file_name, size_bytes, status, created_at, updated_at
		FROM documents WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// UpdateStatus applies one status transition under a row lock so that a
// deletion racing an in-flight ingest resolves through the transition
// table: marking an already-deleting document ready fails closed.
func (c *DatabaseClient) UpdateStatus(ctx context.Context, id string, to models.DocumentStatus) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cur models.DocumentStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return err
	}

	if !models.CanTransition(cur, to) {
		return fmt.Errorf("document %s: %s -> %s: %w", id, cur, to, core.ErrInvalidTransition)
	}
	if cur == to {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, to); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

func (c *DatabaseClient) scanDocument(row *sql.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.Checksum, &d.ContentKey, &d.FileName, &d.SizeBytes, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDocuments(rows *sql.Rows) ([]models.Document, error) {
	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Checksum, &d.ContentKey, &d.FileName, &d.SizeBytes, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
