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

// Link attaches a document to a scope. The unique index on the
// (document_id, scope_type, scope_id) triple collapses concurrent duplicate
// links; the insert loser re-selects the surviving row.
func (c *DatabaseClient) Link(ctx context.Context, documentID string, scopeType models.ScopeType, scopeID string) (*models.ScopeLink, error) {
	link := models.ScopeLink{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		ScopeType:  scopeType,
		ScopeID:    scopeID,
		LinkedAt:   time.Now().UTC(),
	}

	const ins = `
		INSERT INTO document_scopes (id, document_id, scope_type, scope_id, linked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, scope_type, scope_id) DO NOTHING
	`
	res, err := c.db.ExecContext(ctx, ins, link.ID, link.DocumentID, link.ScopeType, link.ScopeID, link.LinkedAt)
	if err != nil {
		return nil, fmt.Errorf("link document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return &link, nil
	}

	const sel = `
		SELECT id, document_id, scope_type, scope_id, linked_at
		FROM document_scopes
		WHERE document_id = $1 AND scope_type = $2 AND scope_id = $3
	`
	var existing models.ScopeLink
	err = c.db.QueryRowContext(ctx, sel, documentID, scopeType, scopeID).
		Scan(&existing.ID, &existing.DocumentID, &existing.ScopeType, &existing.ScopeID, &existing.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// Unlink removes one link and reports how many links the document still has
// across all scopes, inside one transaction so the remaining count is
// consistent with the delete.
func (c *DatabaseClient) Unlink(ctx context.Context, documentID string, scopeType models.ScopeType, scopeID string) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const del = `
		DELETE FROM document_scopes
		WHERE document_id = $1 AND scope_type = $2 AND scope_id = $3
	`
	if _, err := tx.ExecContext(ctx, del, documentID, scopeType, scopeID); err != nil {
		return 0, err
	}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_scopes WHERE document_id = $1`, documentID).Scan(&remaining); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return remaining, nil
}

func (c *DatabaseClient) UnlinkAllForDocument(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_scopes WHERE document_id = $1`, documentID)
	return err
}

func (c *DatabaseClient) ListDocumentIDs(ctx context.Context, scopeType models.ScopeType, scopeID string) ([]string, error) {
	const q = `
		SELECT document_id FROM document_scopes
		WHERE scope_type = $1 AND scope_id = $2
	`
	rows, err := c.db.QueryContext(ctx, q, scopeType, scopeID)
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

func (c *DatabaseClient) ListLinksForDocument(ctx context.Context, documentID string) ([]models.ScopeLink, error) {
	const q = `
		SELECT id, document_id, scope_type, scope_id, linked_at
		FROM document_scopes
		WHERE document_id = $1
		ORDER BY linked_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScopeLink
	for rows.Next() {
		var l models.ScopeLink
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.ScopeType, &l.ScopeID, &l.LinkedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteScopeLinks drops every link a scope holds and returns the affected
// document ids so the caller can orphan-check each one.
func (c *DatabaseClient) DeleteScopeLinks(ctx context.Context, scopeType models.ScopeType, scopeID string) ([]string, error) {
	const q = `
		DELETE FROM document_scopes
		WHERE scope_type = $1 AND scope_id = $2
		RETURNING document_id
	`
	rows, err := c.db.QueryContext(ctx, q, scopeType, scopeID)
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
