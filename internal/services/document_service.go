package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

var pdfMagic = []byte("%PDF")

// DocumentService owns the scoped document lifecycle: validated uploads
// with checksum dedup, scope linking, per-scope listing, unlinking with
// orphan cleanup, and the cascade when a scope itself goes away.
type DocumentService struct {
	catalog   core.DocumentCatalog
	links     core.ScopeLinkRegistry
	chunks    core.ChunkStore
	content   core.ContentStore
	workspace core.WorkspaceStore

	enqueue  func(docID string)
	maxBytes int64
}

func NewDocumentService(catalog core.DocumentCatalog, links core.ScopeLinkRegistry, chunks core.ChunkStore,
	content core.ContentStore, workspace core.WorkspaceStore, enqueue func(docID string), maxBytes int64) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &DocumentService{
		catalog:   catalog,
		links:     links,
		chunks:    chunks,
		content:   content,
		workspace: workspace,
		enqueue:   enqueue,
		maxBytes:  maxBytes,
	}
}

// UploadResult is what an upload hands back to the transport layer.
type UploadResult struct {
	Document *models.Document `json:"document"`
	IsNew    bool             `json:"is_new"`
}

// Upload validates the file, deduplicates it by content hash, links it to
// the requesting scope and, for first-ever content, stores the bytes and
// enqueues ingestion. Re-uploading identical content anywhere reuses the
// canonical document: no second byte write, no second catalog row, and at
// most one link per scope.
func (s *DocumentService) Upload(ctx context.Context, ownerID string, scopeType models.ScopeType, scopeID, fileName string, data []byte) (*UploadResult, error) {
	if err := s.authorizeScope(ctx, ownerID, scopeType, scopeID); err != nil {
		return nil, err
	}
	if err := validatePDF(fileName, data, s.maxBytes); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	checksum := "sha256:" + hex.EncodeToString(sum[:])

	contentKey, err := s.content.Put(ctx, checksum, data, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	doc, isNew, err := s.catalog.RegisterOrReuse(ctx, checksum, contentKey, sanitizeFileName(fileName), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if !isNew && doc.Status == models.StatusDeleting {
		// The canonical row for this content is mid-cleanup; linking would
		// resurrect it. Let the client retry once cleanup converges.
		return nil, fmt.Errorf("identical content is being deleted, retry later: %w", core.ErrInvalidTransition)
	}

	if _, err := s.links.Link(ctx, doc.ID, scopeType, scopeID); err != nil {
		return nil, err
	}

	if isNew {
		s.enqueue(doc.ID)
	}
	return &UploadResult{Document: doc, IsNew: isNew}, nil
}

// ListDocuments returns the documents visible in one scope, excluding any
// that are mid-deletion. For a chat scope, includeInherited also pulls in
// the owning project's documents.
func (s *DocumentService) ListDocuments(ctx context.Context, ownerID string, scopeType models.ScopeType, scopeID string, includeInherited bool) ([]models.Document, error) {
	if err := s.authorizeScope(ctx, ownerID, scopeType, scopeID); err != nil {
		return nil, err
	}

	ids, err := s.links.ListDocumentIDs(ctx, scopeType, scopeID)
	if err != nil {
		return nil, err
	}
	if includeInherited && scopeType == models.ScopeChat {
		chat, err := s.workspace.GetChat(ctx, scopeID)
		if err != nil {
			return nil, err
		}
		if chat.ProjectID != nil {
			inherited, err := s.links.ListDocumentIDs(ctx, models.ScopeProject, *chat.ProjectID)
			if err != nil {
				return nil, err
			}
			ids = append(ids, inherited...)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	docs, err := s.catalog.GetDocuments(ctx, dedupe(ids))
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, d := range docs {
		if d.Status == models.StatusDeleting {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// GetStatus returns the current lifecycle status for clients polling
// ingestion progress.
func (s *DocumentService) GetStatus(ctx context.Context, documentID string) (models.DocumentStatus, error) {
	doc, err := s.catalog.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

// Remove unlinks a document. With a scope it unlinks from that scope only;
// without, it unlinks from every scope the caller owns. A document whose
// last link disappears transitions to deleting and is physically cleaned
// up out of band.
func (s *DocumentService) Remove(ctx context.Context, ownerID, documentID string, scopeType models.ScopeType, scopeID string) error {
	doc, err := s.catalog.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	var remaining int
	if scopeType != "" {
		if err := s.authorizeScope(ctx, ownerID, scopeType, scopeID); err != nil {
			return err
		}
		remaining, err = s.links.Unlink(ctx, documentID, scopeType, scopeID)
		if err != nil {
			return err
		}
	} else {
		all, err := s.links.ListLinksForDocument(ctx, documentID)
		if err != nil {
			return err
		}
		for _, link := range all {
			if s.authorizeScope(ctx, ownerID, link.ScopeType, link.ScopeID) != nil {
				continue
			}
			if _, err = s.links.Unlink(ctx, documentID, link.ScopeType, link.ScopeID); err != nil {
				return err
			}
		}
		// Re-count: links in scopes the caller does not own survive and
		// must keep the document alive.
		left, err := s.links.ListLinksForDocument(ctx, documentID)
		if err != nil {
			return err
		}
		remaining = len(left)
	}

	if remaining == 0 {
		s.orphan(ctx, doc)
	}
	return nil
}

// CascadeDeleteScope unlinks every document from a deleted chat or project
// and orphan-cleans the ones that became unreferenced. The "maybe delete"
// branch is application-level reference counting, which is why this is an
// explicit function rather than a DB cascade.
func (s *DocumentService) CascadeDeleteScope(ctx context.Context, scopeType models.ScopeType, scopeID string) error {
	docIDs, err := s.links.DeleteScopeLinks(ctx, scopeType, scopeID)
	if err != nil {
		return err
	}
	for _, id := range dedupe(docIDs) {
		left, err := s.links.ListLinksForDocument(ctx, id)
		if err != nil {
			return err
		}
		if len(left) > 0 {
			continue
		}
		doc, err := s.catalog.GetDocument(ctx, id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return err
		}
		s.orphan(ctx, doc)
	}
	return nil
}

// orphan flips the document to deleting, making it invisible everywhere
// immediately, and kicks off physical cleanup in the background. Cleanup
// failures are retried by the janitor sweep.
func (s *DocumentService) orphan(ctx context.Context, doc *models.Document) {
	if err := s.catalog.UpdateStatus(ctx, doc.ID, models.StatusDeleting); err != nil {
		log.Printf("documents: mark deleting %s: %v", doc.ID, err)
		return
	}
	go func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.cleanup(cleanupCtx, *doc); err != nil {
			log.Printf("documents: cleanup %s: %v (janitor will retry)", doc.ID, err)
		}
	}()
}

// cleanup removes chunks, bytes and finally the catalog row. Ordering
// matters: the row goes last so an interrupted cleanup stays discoverable
// by the janitor.
func (s *DocumentService) cleanup(ctx context.Context, doc models.Document) error {
	if err := s.chunks.DeleteChunks(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.content.Delete(ctx, doc.ContentKey); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if err := s.links.UnlinkAllForDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	if err := s.catalog.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete catalog row: %w", err)
	}
	return nil
}

// RunJanitor periodically re-drives cleanup for documents stuck in
// deleting, bounding convergence time to one interval past the last
// transient failure.
func (s *DocumentService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stuck, err := s.catalog.ListByStatus(ctx, models.StatusDeleting, 50)
			if err != nil {
				log.Printf("janitor: list deleting: %v", err)
				continue
			}
			for _, doc := range stuck {
				if err := s.cleanup(ctx, doc); err != nil {
					log.Printf("janitor: cleanup %s: %v", doc.ID, err)
				}
			}
		}
	}
}

// authorizeScope confirms the scope exists and belongs to the caller.
// Missing and not-owned are deliberately the same error, so callers learn
// nothing about scopes they do not own.
func (s *DocumentService) authorizeScope(ctx context.Context, ownerID string, scopeType models.ScopeType, scopeID string) error {
	switch scopeType {
	case models.ScopeChat:
		chat, err := s.workspace.GetChat(ctx, scopeID)
		if err != nil || chat.OwnerID != ownerID {
			return core.ErrScopeNotFound
		}
	case models.ScopeProject:
		project, err := s.workspace.GetProject(ctx, scopeID)
		if err != nil || project.OwnerID != ownerID {
			return core.ErrScopeNotFound
		}
	default:
		return fmt.Errorf("scope_type %q: %w", scopeType, core.ErrScopeNotFound)
	}
	return nil
}

func validatePDF(fileName string, data []byte, maxBytes int64) error {
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return fmt.Errorf("only PDF files are accepted: %w", core.ErrInvalidFile)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return fmt.Errorf("missing PDF header: %w", core.ErrInvalidFile)
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("%d bytes over limit %d: %w", len(data), maxBytes, core.ErrFileTooLarge)
	}
	return nil
}

// sanitizeFileName strips path components from an uploaded filename.
func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
