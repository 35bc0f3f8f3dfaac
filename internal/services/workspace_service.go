package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

// WorkspaceService manages the projects, chats and messages that documents
// are scoped to. Deleting a chat or project runs the document cascade so
// orphaned documents get cleaned up.
type WorkspaceService struct {
	store     core.WorkspaceStore
	documents *DocumentService
}

func NewWorkspaceService(store core.WorkspaceStore, documents *DocumentService) *WorkspaceService {
	return &WorkspaceService{store: store, documents: documents}
}

func (s *WorkspaceService) CreateProject(ctx context.Context, ownerID, name string) (*models.Project, error) {
	if name == "" {
		name = "New Project"
	}
	p := &models.Project{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *WorkspaceService) GetProject(ctx context.Context, ownerID, id string) (*models.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil || p.OwnerID != ownerID {
		return nil, core.ErrScopeNotFound
	}
	return p, nil
}

func (s *WorkspaceService) ListProjects(ctx context.Context, ownerID string) ([]models.Project, error) {
	return s.store.ListProjects(ctx, ownerID)
}

// DeleteProject removes the project, its chats with their messages, and
// every scope link those scopes held, orphan-cleaning documents that end
// up unreferenced.
func (s *WorkspaceService) DeleteProject(ctx context.Context, ownerID, id string) error {
	if _, err := s.GetProject(ctx, ownerID, id); err != nil {
		return err
	}

	chats, err := s.store.ListChats(ctx, ownerID, &id)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		if err := s.DeleteChat(ctx, ownerID, chat.ID); err != nil {
			return fmt.Errorf("delete chat %s: %w", chat.ID, err)
		}
	}

	if err := s.documents.CascadeDeleteScope(ctx, models.ScopeProject, id); err != nil {
		return err
	}
	return s.store.DeleteProject(ctx, id)
}

func (s *WorkspaceService) CreateChat(ctx context.Context, ownerID string, projectID *string, title string) (*models.Chat, error) {
	if title == "" {
		title = "New Chat"
	}
	if projectID != nil {
		if _, err := s.GetProject(ctx, ownerID, *projectID); err != nil {
			return nil, err
		}
	}
	c := &models.Chat{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		ProjectID: projectID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *WorkspaceService) GetChat(ctx context.Context, ownerID, id string) (*models.Chat, error) {
	c, err := s.store.GetChat(ctx, id)
	if err != nil || c.OwnerID != ownerID {
		return nil, core.ErrScopeNotFound
	}
	return c, nil
}

func (s *WorkspaceService) ListChats(ctx context.Context, ownerID string, projectID *string) ([]models.Chat, error) {
	return s.store.ListChats(ctx, ownerID, projectID)
}

func (s *WorkspaceService) UpdateChat(ctx context.Context, ownerID, id string, title *string, isPinned *bool) (*models.Chat, error) {
	if _, err := s.GetChat(ctx, ownerID, id); err != nil {
		return nil, err
	}
	if err := s.store.UpdateChat(ctx, id, title, isPinned); err != nil {
		return nil, err
	}
	return s.store.GetChat(ctx, id)
}

// DeleteChat removes the chat, its messages and its scope links, with
// orphan cleanup for documents only this chat referenced.
func (s *WorkspaceService) DeleteChat(ctx context.Context, ownerID, id string) error {
	if _, err := s.GetChat(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.documents.CascadeDeleteScope(ctx, models.ScopeChat, id); err != nil {
		return err
	}
	if err := s.store.DeleteMessagesByChat(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteChat(ctx, id)
}

// SaveMessage appends a message; the first user message of a fresh chat
// also becomes the chat title.
func (s *WorkspaceService) SaveMessage(ctx context.Context, ownerID, chatID, role, content string, sources []string) (*models.Message, error) {
	chat, err := s.GetChat(ctx, ownerID, chatID)
	if err != nil {
		return nil, err
	}
	if role != "user" && role != "assistant" {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	m := &models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, err
	}

	if chat.Title == "New Chat" && role == "user" {
		title := content
		if len(title) > 50 {
			title = title[:50] + "..."
		}
		if err := s.store.UpdateChat(ctx, chatID, &title, nil); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (s *WorkspaceService) ListMessages(ctx context.Context, ownerID, chatID string) ([]models.Message, error) {
	if _, err := s.GetChat(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, chatID)
}
