package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

func (c *DatabaseClient) CreateProject(ctx context.Context, p *models.Project) error {
	if p == nil {
		return errors.New("nil project")
	}
	const q = `
		INSERT INTO projects (id, owner_id, name, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`
	_, err := c.db.ExecContext(ctx, q, p.ID, p.OwnerID, p.Name, p.CreatedAt)
	return err
}

func (c *DatabaseClient) GetProject(ctx context.Context, id string) (*models.Project, error) {
	const q = `SELECT id, owner_id, name, created_at FROM projects WHERE id = $1`
	var p models.Project
	err := c.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *DatabaseClient) ListProjects(ctx context.Context, ownerID string) ([]models.Project, error) {
	const q = `
		SELECT id, owner_id, name, created_at FROM projects
		WHERE owner_id = $1 ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteProject(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

func (c *DatabaseClient) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat == nil {
		return errors.New("nil chat")
	}
	const q = `
		INSERT INTO chats (id, owner_id, project_id, title, is_pinned, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	_, err := c.db.ExecContext(ctx, q, chat.ID, chat.OwnerID, chat.ProjectID, chat.Title, chat.IsPinned, chat.CreatedAt)
	return err
}

func (c *DatabaseClient) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	const q = `SELECT id, owner_id, project_id, title, is_pinned, created_at FROM chats WHERE id = $1`
	var ch models.Chat
	err := c.db.QueryRowContext(ctx, q, id).Scan(&ch.ID, &ch.OwnerID, &ch.ProjectID, &ch.Title, &ch.IsPinned, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChats returns the owner's chats, optionally restricted to one
// project. projectID pointing at an empty string selects standalone chats.
func (c *DatabaseClient) ListChats(ctx context.Context, ownerID string, projectID *string) ([]models.Chat, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case projectID == nil:
		rows, err = c.db.QueryContext(ctx, `
			SELECT id, owner_id, project_id, title, is_pinned, created_at FROM chats
			WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	case *projectID == "":
		rows, err = c.db.QueryContext(ctx, `
			SELECT id, owner_id, project_id, title, is_pinned, created_at FROM chats
			WHERE owner_id = $1 AND project_id IS NULL ORDER BY created_at DESC`, ownerID)
	default:
		rows, err = c.db.QueryContext(ctx, `
			SELECT id, owner_id, project_id, title, is_pinned, created_at FROM chats
			WHERE owner_id = $1 AND project_id = $2 ORDER BY created_at DESC`, ownerID, *projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chat
	for rows.Next() {
		var ch models.Chat
		if err := rows.Scan(&ch.ID, &ch.OwnerID, &ch.ProjectID, &ch.Title, &ch.IsPinned, &ch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateChat(ctx context.Context, id string, title *string, isPinned *bool) error {
	if title == nil && isPinned == nil {
		return nil
	}
	const q = `
		UPDATE chats
		SET title = COALESCE($2, title), is_pinned = COALESCE($3, is_pinned)
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, title, isPinned)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (c *DatabaseClient) DeleteChat(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	return err
}

func (c *DatabaseClient) CreateMessage(ctx context.Context, m *models.Message) error {
	if m == nil {
		return errors.New("nil message")
	}
	sources, err := json.Marshal(m.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	const q = `
		INSERT INTO messages (id, chat_id, role, content, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	_, err = c.db.ExecContext(ctx, q, m.ID, m.ChatID, m.Role, m.Content, sources, m.CreatedAt)
	return err
}

func (c *DatabaseClient) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	const q = `
		SELECT id, chat_id, role, content, sources, created_at FROM messages
		WHERE chat_id = $1 ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m   models.Message
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &raw, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal sources: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteMessagesByChat(ctx context.Context, chatID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID)
	return err
}
