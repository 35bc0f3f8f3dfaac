package core

import (
	"context"

	"github.com/docurag/docurag/internal/models"
)

// DocumentCatalog holds the canonical, deduplicated document records.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DocumentCatalog interface {
	// RegisterOrReuse returns the document for checksum, creating it with
	// status pending when no document with that checksum exists yet. The
	// checksum race between concurrent identical uploads is resolved by the
	// store's unique constraint: the loser reuses, it never errors.
	RegisterOrReuse(ctx context.Context, checksum, contentKey, fileName string, sizeBytes int64) (doc *models.Document, isNew bool, err error)

	GetDocument(ctx context.Context, id string) (*models.Document, error)
	FindByChecksum(ctx context.Context, checksum string) (*models.Document, error)
	GetDocuments(ctx context.Context, ids []string) ([]models.Document, error)

	// UpdateStatus applies one transition of the document status state
	// machine. Same-status writes are no-ops; illegal transitions return
	// ErrInvalidTransition; unknown ids return ErrNotFound.
	UpdateStatus(ctx context.Context, id string, to models.DocumentStatus) error

	// ListByStatus returns documents currently in the given status, used by
	// the cleanup janitor to find deleting documents whose physical
	// cleanup has not converged yet.
	ListByStatus(ctx context.Context, status models.DocumentStatus, limit int) ([]models.Document, error)

	// DeleteDocument removes the catalog row. Called only at the end of
	// physical cleanup, after chunks and bytes are gone.
	DeleteDocument(ctx context.Context, id string) error
}

// ScopeLinkRegistry is the many-to-many junction between documents and
// scopes. Every retrieval-scoping decision funnels through ListDocumentIDs.
type ScopeLinkRegistry interface {
	// Link attaches a document to a scope. If the triple already exists the
	// existing link is returned; concurrent duplicate links collapse onto
	// one row via the unique triple constraint.
	Link(ctx context.Context, documentID string, scopeType models.ScopeType, scopeID string) (*models.ScopeLink, error)

	// Unlink removes one link and returns how many links remain for the
	// document across all scopes, so the caller can decide whether the
	// document just became an orphan.
	Unlink(ctx context.Context, documentID string, scopeType models.ScopeType, scopeID string) (remaining int, err error)

	// UnlinkAllForDocument removes every link for a document, regardless of
	// scope. Used when a document is deleted outright.
	UnlinkAllForDocument(ctx context.Context, documentID string) error

	// ListDocumentIDs returns the ids of all documents linked to a scope.
	ListDocumentIDs(ctx context.Context, scopeType models.ScopeType, scopeID string) ([]string, error)

	// ListLinksForDocument returns every place a document is visible.
	ListLinksForDocument(ctx context.Context, documentID string) ([]models.ScopeLink, error)

	// DeleteScopeLinks removes all links belonging to a scope and returns
	// the document ids that were linked, so the caller can orphan-check
	// each one. Called when a chat or project itself is deleted.
	DeleteScopeLinks(ctx context.Context, scopeType models.ScopeType, scopeID string) (documentIDs []string, err error)
}

// ScoredChunk is one similarity-search hit.
type ScoredChunk struct {
	Chunk models.Chunk
	Score float32
}

// ChunkStore persists the embedded text fragments and runs the scoped
// similarity search.
type ChunkStore interface {
	// ReplaceChunks deletes any existing chunks for the document and
	// inserts the new ordered set in one transaction, so a concurrent
	// reader never observes a mixed old/new chunk set.
	ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error

	DeleteChunks(ctx context.Context, documentID string) error

	CountChunks(ctx context.Context, documentID string) (int, error)

	// Search ranks chunks by similarity to queryVec, restricted to
	// documentIDs before ranking. A chunk outside the id set never appears
	// in results, even if it would score higher. Ties are broken by
	// (document_id, chunk_index) ascending.
	Search(ctx context.Context, documentIDs []string, queryVec []float32, topK int) ([]ScoredChunk, error)
}

// WorkspaceStore holds the chats, projects and messages that scopes refer
// to. The document core reads chats only to follow project inheritance.
type WorkspaceStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]models.Project, error)
	DeleteProject(ctx context.Context, id string) error

	CreateChat(ctx context.Context, c *models.Chat) error
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ListChats(ctx context.Context, ownerID string, projectID *string) ([]models.Chat, error)
	UpdateChat(ctx context.Context, id string, title *string, isPinned *bool) error
	DeleteChat(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	DeleteMessagesByChat(ctx context.Context, chatID string) error
}

// UserStore persists accounts for the auth surface.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}
