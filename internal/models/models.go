package models

import (
	"time"
)

// DocumentStatus is the lifecycle state of a canonical document.
type DocumentStatus string

const (
	// StatusPending means the document is registered but its chunks are not
	// fully ingested yet. Freshly uploaded documents start here.
	StatusPending DocumentStatus = "pending"
	// StatusReady means the full chunk set for the document is committed and
	// the document is searchable.
	StatusReady DocumentStatus = "ready"
	// StatusFailed means ingestion produced no usable content (empty or
	// unparseable file). A failed document is never searchable and is kept
	// visible as broken rather than silently marked ready with zero chunks.
	StatusFailed DocumentStatus = "failed"
	// StatusDeleting means the document is unreferenced and queued for
	// physical cleanup. It is excluded from every listing and search
	// immediately, even while cleanup of bytes/chunks is still running.
	StatusDeleting DocumentStatus = "deleting"
)

// allowedTransitions is the closed transition table for DocumentStatus.
// Every status write goes through CanTransition; call sites never assume
// legality on their own.
var allowedTransitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:  {StatusReady, StatusFailed, StatusDeleting},
	StatusFailed:   {StatusPending, StatusDeleting},
	StatusReady:    {StatusDeleting},
	StatusDeleting: {},
}

// CanTransition reports whether from -> to is a legal status change.
// A same-status write is treated as a legal no-op.
func CanTransition(from, to DocumentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a member of the status enumeration.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusFailed, StatusDeleting:
		return true
	}
	return false
}

// ScopeType identifies the kind of container a document is attached to.
type ScopeType string

const (
	ScopeChat    ScopeType = "chat"
	ScopeProject ScopeType = "project"
)

// Valid reports whether t is a known scope type.
func (t ScopeType) Valid() bool {
	return t == ScopeChat || t == ScopeProject
}

// Document is the canonical, globally deduplicated record for one distinct
// file content. Exactly one Document exists per checksum no matter how many
// users or scopes reference it; scopes only point at it through ScopeLink.
type Document struct {
	ID         string         `db:"id" json:"id"`
	Checksum   string         `db:"checksum" json:"checksum"` // "sha256:<hex>", unique
	ContentKey string         `db:"content_key" json:"content_key"`
	FileName   string         `db:"file_name" json:"file_name"`
	SizeBytes  int64          `db:"size_bytes" json:"size_bytes"`
	Status     DocumentStatus `db:"status" json:"status"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// ScopeLink attaches a Document to one chat or project. The triple
// (document_id, scope_type, scope_id) is unique; re-uploading identical
// content to the same scope collapses onto the existing link.
type ScopeLink struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ScopeType  ScopeType `db:"scope_type" json:"scope_type"`
	ScopeID    string    `db:"scope_id" json:"scope_id"`
	LinkedAt   time.Time `db:"linked_at" json:"linked_at"`
}

// Chunk is one embedded, page-tagged fragment of a document's extracted
// text. Chunk IDs are derived from (document_id, chunk_index), so
// re-ingesting the same document overwrites instead of duplicating.
// Chunks carry no scope information; visibility is always derived through
// ScopeLink.
type Chunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	PageNumber int       `db:"page_number" json:"page_number"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Project groups chats and can hold its own documents, which every chat in
// the project inherits at query time.
type Project struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Chat is one conversation. ProjectID is nil for standalone chats; a
// non-nil ProjectID is what drives project-inherited search.
type Chat struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	ProjectID *string   `db:"project_id" json:"project_id"`
	Title     string    `db:"title" json:"title"`
	IsPinned  bool      `db:"is_pinned" json:"is_pinned"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Message is an individual chat message (user or assistant).
type Message struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	Role      string    `db:"role" json:"role"` // "user" or "assistant"
	Content   string    `db:"content" json:"content"`
	Sources   []string  `db:"sources" json:"sources"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
