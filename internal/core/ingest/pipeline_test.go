package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

type fakeCatalog struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{docs: map[string]*models.Document{}}
}

func (f *fakeCatalog) RegisterOrReuse(ctx context.Context, checksum, contentKey, fileName string, sizeBytes int64) (*models.Document, bool, error) {
	panic("not used")
}

func (f *fakeCatalog) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeCatalog) FindByChecksum(ctx context.Context, checksum string) (*models.Document, error) {
	panic("not used")
}

func (f *fakeCatalog) GetDocuments(ctx context.Context, ids []string) ([]models.Document, error) {
	panic("not used")
}

func (f *fakeCatalog) UpdateStatus(ctx context.Context, id string, to models.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return core.ErrNotFound
	}
	if !models.CanTransition(d.Status, to) {
		return fmt.Errorf("%s -> %s: %w", d.Status, to, core.ErrInvalidTransition)
	}
	d.Status = to
	return nil
}

func (f *fakeCatalog) ListByStatus(ctx context.Context, status models.DocumentStatus, limit int) ([]models.Document, error) {
	panic("not used")
}

func (f *fakeCatalog) DeleteDocument(ctx context.Context, id string) error {
	panic("not used")
}

func (f *fakeCatalog) status(id string) models.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Status
}

type fakeChunkStore struct {
	mu       sync.Mutex
	byDoc    map[string][]models.Chunk
	replaces int
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{byDoc: map[string][]models.Chunk{}}
}

func (f *fakeChunkStore) ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byDoc[documentID] = append([]models.Chunk(nil), chunks...)
	f.replaces++
	return nil
}

func (f *fakeChunkStore) DeleteChunks(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byDoc, documentID)
	return nil
}

func (f *fakeChunkStore) CountChunks(ctx context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byDoc[documentID]), nil
}

func (f *fakeChunkStore) Search(ctx context.Context, documentIDs []string, queryVec []float32, topK int) ([]core.ScoredChunk, error) {
	panic("not used")
}

type fakeContentStore struct {
	blobs map[string][]byte
}

func (f *fakeContentStore) Put(ctx context.Context, checksum string, data []byte, contentType string) (string, error) {
	panic("not used")
}

func (f *fakeContentStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, ok := f.blobs[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return b, nil
}

func (f *fakeContentStore) Delete(ctx context.Context, key string) error { return nil }

type fakeExtractor struct {
	pages map[string][]core.Page // keyed by raw content
}

func (f *fakeExtractor) ExtractPages(ctx context.Context, data []byte, contentType string) ([]core.Page, error) {
	pages, ok := f.pages[string(data)]
	if !ok || len(pages) == 0 {
		return nil, core.ErrEmptyDocument
	}
	return pages, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5}
	}
	return out, nil
}

func pipelineFixture(status models.DocumentStatus, content string, pages []core.Page) (*Pipeline, *fakeCatalog, *fakeChunkStore, *fakeEmbedder) {
	catalog := newFakeCatalog()
	catalog.docs["doc-1"] = &models.Document{
		ID:         "doc-1",
		ContentKey: "blobs/sha256/abc",
		Status:     status,
	}
	chunks := newFakeChunkStore()
	blobs := &fakeContentStore{blobs: map[string][]byte{"blobs/sha256/abc": []byte(content)}}
	extractor := &fakeExtractor{pages: map[string][]core.Page{content: pages}}
	embedder := &fakeEmbedder{}

	p := NewPipeline(catalog, chunks, blobs, extractor, embedder, Config{
		TargetTokens:  50,
		OverlapTokens: 0,
		BatchSize:     4,
		Workers:       1,
	})
	return p, catalog, chunks, embedder
}

func somePages() []core.Page {
	return []core.Page{
		{Number: 1, Text: "the quick brown fox jumps over the lazy dog\nand keeps running"},
		{Number: 2, Text: "second page content about vector search and retrieval"},
	}
}

func TestProcessOneMarksReadyAfterChunks(t *testing.T) {
	p, catalog, chunks, _ := pipelineFixture(models.StatusPending, "raw-pdf", somePages())

	require.NoError(t, p.ProcessOne(context.Background(), "doc-1"))

	assert.Equal(t, models.StatusReady, catalog.status("doc-1"))
	n, _ := chunks.CountChunks(context.Background(), "doc-1")
	assert.Greater(t, n, 0)
}

func TestProcessOneIdempotentChunkIDs(t *testing.T) {
	p, catalog, chunks, _ := pipelineFixture(models.StatusPending, "raw-pdf", somePages())

	require.NoError(t, p.ProcessOne(context.Background(), "doc-1"))
	first := append([]models.Chunk(nil), chunks.byDoc["doc-1"]...)

	// Force a second full run by resetting the status.
	catalog.docs["doc-1"].Status = models.StatusPending
	require.NoError(t, p.ProcessOne(context.Background(), "doc-1"))
	second := chunks.byDoc["doc-1"]

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "chunk %d id must be stable", i)
		assert.Equal(t, first[i].ChunkIndex, second[i].ChunkIndex)
	}
	assert.Equal(t, 2, chunks.replaces, "re-ingest replaces, never appends")
}

func TestProcessOneSkipsReadyDocument(t *testing.T) {
	p, catalog, chunks, embedder := pipelineFixture(models.StatusReady, "raw-pdf", somePages())

	require.NoError(t, p.ProcessOne(context.Background(), "doc-1"))

	assert.Equal(t, models.StatusReady, catalog.status("doc-1"))
	assert.Zero(t, chunks.replaces)
	assert.Zero(t, embedder.calls)
}

func TestProcessOneDeletingPreemptsIngest(t *testing.T) {
	p, catalog, chunks, embedder := pipelineFixture(models.StatusDeleting, "raw-pdf", somePages())

	require.NoError(t, p.ProcessOne(context.Background(), "doc-1"))

	assert.Equal(t, models.StatusDeleting, catalog.status("doc-1"))
	assert.Zero(t, chunks.replaces, "deleting document must not gain chunks")
	assert.Zero(t, embedder.calls)
}

func TestProcessOneEmptyDocumentFails(t *testing.T) {
	p, catalog, chunks, _ := pipelineFixture(models.StatusPending, "raw-pdf", nil)

	err := p.ProcessOne(context.Background(), "doc-1")
	require.ErrorIs(t, err, core.ErrEmptyDocument)

	assert.Equal(t, models.StatusFailed, catalog.status("doc-1"))
	assert.Zero(t, chunks.replaces)
}

func TestProcessOneEmbedFailureLeavesPending(t *testing.T) {
	p, catalog, chunks, embedder := pipelineFixture(models.StatusPending, "raw-pdf", somePages())
	embedder.fail = true

	err := p.ProcessOne(context.Background(), "doc-1")
	require.Error(t, err)

	// Transient failure: nothing persisted, the document can be retried.
	assert.Equal(t, models.StatusPending, catalog.status("doc-1"))
	assert.Zero(t, chunks.replaces)
}

func TestProcessOneMissingContentLeavesPending(t *testing.T) {
	p, catalog, _, _ := pipelineFixture(models.StatusPending, "raw-pdf", somePages())
	catalog.docs["doc-1"].ContentKey = "blobs/sha256/missing"

	err := p.ProcessOne(context.Background(), "doc-1")
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, models.StatusPending, catalog.status("doc-1"))
}

func TestChunkIDDeterministic(t *testing.T) {
	a := ChunkID("doc-1", 0)
	b := ChunkID("doc-1", 0)
	c := ChunkID("doc-1", 1)
	d := ChunkID("doc-2", 0)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}
