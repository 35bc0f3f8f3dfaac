package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

// ReplaceChunks swaps a document's chunk set wholesale inside one
// transaction. A concurrent reader sees either the full old set or the
// full new set, never a mix; together with the catalog's ready-after-commit
// ordering this is what keeps status=ready truthful.
func (c *DatabaseClient) ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	const q = `
		INSERT INTO document_chunks (id, document_id, chunk_index, page_number, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.ChunkIndex, ch.PageNumber, ch.Text, vec, now); err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteChunks(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func (c *DatabaseClient) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

// Search ranks chunks by cosine similarity to queryVec, restricted to the
// supplied document ids before ranking. The id filter is part of the WHERE
// clause, so search cost tracks the visible corpus and a chunk outside the
// set can never surface regardless of its score. Ties break on
// (document_id, chunk_index) ascending for deterministic ordering.
func (c *DatabaseClient) Search(ctx context.Context, documentIDs []string, queryVec []float32, topK int) ([]core.ScoredChunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, document_id, chunk_index, page_number, text, embedding,
		       1 - (embedding <=> $2) AS score
		FROM document_chunks
		WHERE document_id = ANY($1)
		ORDER BY embedding <=> $2 ASC, document_id ASC, chunk_index ASC
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, documentIDs, vec, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ScoredChunk
	for rows.Next() {
		var (
			ch    models.Chunk
			emb   pgvector.Vector
			score float32
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.PageNumber, &ch.Text, &emb, &score); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, core.ScoredChunk{Chunk: ch, Score: score})
	}
	return out, rows.Err()
}
