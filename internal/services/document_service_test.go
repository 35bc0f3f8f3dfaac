package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

// memStore is an in-memory stand-in for the Postgres-backed stores. It is
// mutex-guarded because orphan cleanup runs on a background goroutine.
type memStore struct {
	mu sync.Mutex

	docs       map[string]*models.Document
	byChecksum map[string]string // checksum -> doc id
	links      []models.ScopeLink
	chunks     map[string][]models.Chunk
	blobs      map[string][]byte
	puts       int

	chats    map[string]*models.Chat
	projects map[string]*models.Project
	messages []models.Message
}

func newMemStore() *memStore {
	return &memStore{
		docs:       map[string]*models.Document{},
		byChecksum: map[string]string{},
		chunks:     map[string][]models.Chunk{},
		blobs:      map[string][]byte{},
		chats:      map[string]*models.Chat{},
		projects:   map[string]*models.Project{},
	}
}

// --- DocumentCatalog ---

func (m *memStore) RegisterOrReuse(ctx context.Context, checksum, contentKey, fileName string, sizeBytes int64) (*models.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byChecksum[checksum]; ok {
		cp := *m.docs[id]
		return &cp, false, nil
	}
	d := &models.Document{
		ID:         uuid.NewString(),
		Checksum:   checksum,
		ContentKey: contentKey,
		FileName:   fileName,
		SizeBytes:  sizeBytes,
		Status:     models.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	m.docs[d.ID] = d
	m.byChecksum[checksum] = d.ID
	cp := *d
	return &cp, true, nil
}

func (m *memStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) FindByChecksum(ctx context.Context, checksum string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byChecksum[checksum]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *m.docs[id]
	return &cp, nil
}

func (m *memStore) GetDocuments(ctx context.Context, ids []string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, to models.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return core.ErrNotFound
	}
	if !models.CanTransition(d.Status, to) {
		return fmt.Errorf("%s -> %s: %w", d.Status, to, core.ErrInvalidTransition)
	}
	d.Status = to
	return nil
}

func (m *memStore) ListByStatus(ctx context.Context, status models.DocumentStatus, limit int) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.Status == status && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil
	}
	delete(m.byChecksum, d.Checksum)
	delete(m.docs, id)
	return nil
}

// --- ScopeLinkRegistry ---

func (m *memStore) Link(ctx context.Context, documentID string, scopeType models.ScopeType, scopeID string) (*models.ScopeLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.links {
		l := m.links[i]
		if l.DocumentID == documentID && l.ScopeType == scopeType && l.ScopeID == scopeID {
			return &l, nil
		}
	}
	l := models.ScopeLink{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		ScopeType:  scopeType,
		ScopeID:    scopeID,
		LinkedAt:   time.Now().UTC(),
	}
	m.links = append(m.links, l)
	return &l, nil
}

func (m *memStore) Unlink(ctx context.Context, documentID string, scopeType models.ScopeType, scopeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.links[:0]
	for _, l := range m.links {
		if l.DocumentID == documentID && l.ScopeType == scopeType && l.ScopeID == scopeID {
			continue
		}
		kept = append(kept, l)
	}
	m.links = kept
	remaining := 0
	for _, l := range m.links {
		if l.DocumentID == documentID {
			remaining++
		}
	}
	return remaining, nil
}

func (m *memStore) UnlinkAllForDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.links[:0]
	for _, l := range m.links {
		if l.DocumentID != documentID {
			kept = append(kept, l)
		}
	}
	m.links = kept
	return nil
}

func (m *memStore) ListDocumentIDs(ctx context.Context, scopeType models.ScopeType, scopeID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, l := range m.links {
		if l.ScopeType == scopeType && l.ScopeID == scopeID {
			ids = append(ids, l.DocumentID)
		}
	}
	return ids, nil
}

func (m *memStore) ListLinksForDocument(ctx context.Context, documentID string) ([]models.ScopeLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScopeLink
	for _, l := range m.links {
		if l.DocumentID == documentID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) DeleteScopeLinks(ctx context.Context, scopeType models.ScopeType, scopeID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docIDs []string
	kept := m.links[:0]
	for _, l := range m.links {
		if l.ScopeType == scopeType && l.ScopeID == scopeID {
			docIDs = append(docIDs, l.DocumentID)
			continue
		}
		kept = append(kept, l)
	}
	m.links = kept
	return docIDs, nil
}

// --- ChunkStore ---

func (m *memStore) ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[documentID] = append([]models.Chunk(nil), chunks...)
	return nil
}

func (m *memStore) DeleteChunks(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, documentID)
	return nil
}

func (m *memStore) CountChunks(ctx context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[documentID]), nil
}

func (m *memStore) Search(ctx context.Context, documentIDs []string, queryVec []float32, topK int) ([]core.ScoredChunk, error) {
	panic("not used")
}

// --- ContentStore ---

func (m *memStore) Put(ctx context.Context, checksum string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "blobs/" + checksum
	if _, ok := m.blobs[key]; !ok {
		m.blobs[key] = append([]byte(nil), data...)
		m.puts++
	}
	return key, nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return b, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// --- WorkspaceStore (only what the document service touches) ---

func (m *memStore) CreateProject(ctx context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListProjects(ctx context.Context, ownerID string) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Project
	for _, p := range m.projects {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) DeleteProject(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	return nil
}

func (m *memStore) CreateChat(ctx context.Context, c *models.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[c.ID] = c
	return nil
}

func (m *memStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListChats(ctx context.Context, ownerID string, projectID *string) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Chat
	for _, c := range m.chats {
		if c.OwnerID != ownerID {
			continue
		}
		if projectID != nil {
			if *projectID == "" && c.ProjectID != nil {
				continue
			}
			if *projectID != "" && (c.ProjectID == nil || *c.ProjectID != *projectID) {
				continue
			}
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) UpdateChat(ctx context.Context, id string, title *string, isPinned *bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return core.ErrNotFound
	}
	if title != nil {
		c.Title = *title
	}
	if isPinned != nil {
		c.IsPinned = *isPinned
	}
	return nil
}

func (m *memStore) DeleteChat(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, id)
	return nil
}

func (m *memStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) DeleteMessagesByChat(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ChatID != chatID {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *memStore) docCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *memStore) linkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *memStore) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *memStore) blobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// --- fixtures ---

type enqueueRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (e *enqueueRecorder) record(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
}

func (e *enqueueRecorder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ids)
}

func pdf(body string) []byte {
	return []byte("%PDF-1.7\n" + body)
}

func serviceFixture(t *testing.T) (*DocumentService, *memStore, *enqueueRecorder) {
	t.Helper()
	store := newMemStore()
	rec := &enqueueRecorder{}
	svc := NewDocumentService(store, store, store, store, store, rec.record, 1<<20)

	store.chats["chat-1"] = &models.Chat{ID: "chat-1", OwnerID: "alice"}
	store.chats["chat-2"] = &models.Chat{ID: "chat-2", OwnerID: "alice"}
	store.chats["chat-bob"] = &models.Chat{ID: "chat-bob", OwnerID: "bob"}
	store.projects["proj-1"] = &models.Project{ID: "proj-1", OwnerID: "alice"}
	return svc, store, rec
}

// --- tests ---

func TestUploadNewDocument(t *testing.T) {
	svc, store, rec := serviceFixture(t)

	res, err := svc.Upload(context.Background(), "alice", models.ScopeChat, "chat-1", "notes.pdf", pdf("hello"))
	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.Equal(t, models.StatusPending, res.Document.Status)
	assert.Equal(t, "notes.pdf", res.Document.FileName)
	assert.Equal(t, 1, store.putCount())
	assert.Equal(t, 1, store.linkCount())
	assert.Equal(t, 1, rec.count(), "first-ever content is enqueued for ingestion")
}

func TestUploadDuplicateContentAcrossScopes(t *testing.T) {
	svc, store, rec := serviceFixture(t)
	data := pdf("shared content")

	first, err := svc.Upload(context.Background(), "alice", models.ScopeChat, "chat-1", "a.pdf", data)
	require.NoError(t, err)
	second, err := svc.Upload(context.Background(), "alice", models.ScopeProject, "proj-1", "b.pdf", data)
	require.NoError(t, err)

	assert.True(t, first.IsNew)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Document.ID, second.Document.ID, "identical bytes collapse onto one document")
	assert.Equal(t, 1, store.docCount())
	assert.Equal(t, 1, store.putCount(), "bytes stored exactly once")
	assert.Equal(t, 2, store.linkCount(), "one link per scope")
	assert.Equal(t, 1, rec.count(), "ingestion runs once per content")
}

func TestUploadDuplicateToSameScopeIsIdempotent(t *testing.T) {
	svc, store, _ := serviceFixture(t)
	data := pdf("same scope twice")

	_, err := svc.Upload(context.Background(), "alice", models.ScopeChat, "chat-1", "a.pdf", data)
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), "alice", models.ScopeChat, "chat-1", "a.pdf", data)
	require.NoError(t, err)

	assert.Equal(t, 1, store.linkCount(), "same triple never duplicates the link")
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	svc, _, rec := serviceFixture(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "notes.txt", pdf("x"))
	assert.ErrorIs(t, err, core.ErrInvalidFile, "wrong extension")

	_, err = svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "notes.pdf", []byte("plain text"))
	assert.ErrorIs(t, err, core.ErrInvalidFile, "missing magic bytes")

	big := append(pdf(""), make([]byte, 2<<20)...)
	_, err = svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "big.pdf", big)
	assert.ErrorIs(t, err, core.ErrFileTooLarge)

	assert.Zero(t, rec.count())
}

func TestUploadToForeignScopeDenied(t *testing.T) {
	svc, store, _ := serviceFixture(t)

	_, err := svc.Upload(context.Background(), "alice", models.ScopeChat, "chat-bob", "a.pdf", pdf("x"))
	assert.ErrorIs(t, err, core.ErrScopeNotFound)

	_, err = svc.Upload(context.Background(), "alice", models.ScopeChat, "no-such-chat", "a.pdf", pdf("x"))
	assert.ErrorIs(t, err, core.ErrScopeNotFound, "missing and not-owned look identical")

	assert.Zero(t, store.docCount())
}

func TestUploadWhileDeletingConflicts(t *testing.T) {
	svc, store, _ := serviceFixture(t)
	data := pdf("doomed")

	res, err := svc.Upload(context.Background(), "alice", models.ScopeChat, "chat-1", "a.pdf", data)
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(context.Background(), res.Document.ID, models.StatusDeleting))

	_, err = svc.Upload(context.Background(), "alice", models.ScopeChat, "chat-2", "a.pdf", data)
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "mid-cleanup content must not be resurrected")
}

func TestListDocumentsWithInheritance(t *testing.T) {
	svc, store, _ := serviceFixture(t)
	ctx := context.Background()

	projID := "proj-1"
	store.chats["chat-1"].ProjectID = &projID

	_, err := svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "chat.pdf", pdf("chat doc"))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, "alice", models.ScopeProject, "proj-1", "proj.pdf", pdf("proj doc"))
	require.NoError(t, err)

	own, err := svc.ListDocuments(ctx, "alice", models.ScopeChat, "chat-1", false)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	all, err := svc.ListDocuments(ctx, "alice", models.ScopeChat, "chat-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRemoveFromOneScopeKeepsDocumentAlive(t *testing.T) {
	svc, store, _ := serviceFixture(t)
	ctx := context.Background()
	data := pdf("shared")

	res, err := svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "a.pdf", data)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, "alice", models.ScopeChat, "chat-2", "a.pdf", data)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "alice", res.Document.ID, models.ScopeChat, "chat-1"))

	doc, err := store.GetDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.StatusDeleting, doc.Status, "still linked in chat-2")
	assert.Equal(t, 1, store.linkCount())
}

func TestRemoveLastLinkOrphansDocument(t *testing.T) {
	svc, store, _ := serviceFixture(t)
	ctx := context.Background()

	res, err := svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "a.pdf", pdf("only ref"))
	require.NoError(t, err)
	require.NoError(t, store.ReplaceChunks(ctx, res.Document.ID, []models.Chunk{{ID: "c1", DocumentID: res.Document.ID}}))

	require.NoError(t, svc.Remove(ctx, "alice", res.Document.ID, models.ScopeChat, "chat-1"))

	// Cleanup is async; the catalog row, chunks and bytes all converge to
	// gone.
	assert.Eventually(t, func() bool {
		return store.docCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	n, _ := store.CountChunks(ctx, res.Document.ID)
	assert.Zero(t, n)
	assert.Zero(t, store.blobCount(), "bytes deleted")
}

func TestRemoveUnscopedSparesForeignLinks(t *testing.T) {
	svc, store, _ := serviceFixture(t)
	ctx := context.Background()
	data := pdf("cross user")

	res, err := svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "a.pdf", data)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, "bob", models.ScopeChat, "chat-bob", "a.pdf", data)
	require.NoError(t, err)

	// Unscoped remove: alice unlinks everywhere she can; bob's link and
	// the document itself survive.
	require.NoError(t, svc.Remove(ctx, "alice", res.Document.ID, "", ""))

	assert.Equal(t, 1, store.linkCount())
	doc, err := store.GetDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.StatusDeleting, doc.Status)
}

func TestCascadeDeleteScope(t *testing.T) {
	svc, store, _ := serviceFixture(t)
	ctx := context.Background()

	shared := pdf("shared with project")
	res1, err := svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "shared.pdf", shared)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, "alice", models.ScopeProject, "proj-1", "shared.pdf", shared)
	require.NoError(t, err)

	res2, err := svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "solo.pdf", pdf("chat only"))
	require.NoError(t, err)

	require.NoError(t, svc.CascadeDeleteScope(ctx, models.ScopeChat, "chat-1"))

	// The shared document survives through its project link.
	_, err = store.GetDocument(ctx, res1.Document.ID)
	assert.NoError(t, err)

	// The chat-only document becomes an orphan and is cleaned up.
	assert.Eventually(t, func() bool {
		_, err := store.GetDocument(ctx, res2.Document.ID)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetStatus(t *testing.T) {
	svc, store, _ := serviceFixture(t)
	ctx := context.Background()

	res, err := svc.Upload(ctx, "alice", models.ScopeChat, "chat-1", "a.pdf", pdf("x"))
	require.NoError(t, err)

	status, err := svc.GetStatus(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)

	require.NoError(t, store.UpdateStatus(ctx, res.Document.ID, models.StatusReady))
	status, err = svc.GetStatus(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, status)

	_, err = svc.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "report.pdf", sanitizeFileName("../../etc/report.pdf"))
	assert.Equal(t, "my_notes.pdf", sanitizeFileName("  my notes.pdf "))
}
