package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

// Resolver computes the authoritative set of document ids a chat may
// search: its own links plus, for a project chat, the project's links.
// Inheritance is additive; isolation is simply the absence of any other
// scope's ids in the union.
type Resolver struct {
	links     core.ScopeLinkRegistry
	catalog   core.DocumentCatalog
	workspace core.WorkspaceStore
}

func NewResolver(links core.ScopeLinkRegistry, catalog core.DocumentCatalog, workspace core.WorkspaceStore) *Resolver {
	return &Resolver{links: links, catalog: catalog, workspace: workspace}
}

// ResolveVisibleDocuments returns the searchable document ids for a chat,
// sorted for deterministic downstream behavior. Documents that are
// deleting or failed are filtered out, so deletion is visible immediately
// even while physical cleanup lags.
func (r *Resolver) ResolveVisibleDocuments(ctx context.Context, chatID string) ([]string, error) {
	chat, err := r.workspace.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("resolve chat %s: %w", chatID, err)
	}

	ids, err := r.links.ListDocumentIDs(ctx, models.ScopeChat, chatID)
	if err != nil {
		return nil, err
	}
	if chat.ProjectID != nil {
		projectIDs, err := r.links.ListDocumentIDs(ctx, models.ScopeProject, *chat.ProjectID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, projectIDs...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(ids))
	unique := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	docs, err := r.catalog.GetDocuments(ctx, unique)
	if err != nil {
		return nil, err
	}

	visible := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Status == models.StatusDeleting || d.Status == models.StatusFailed {
			continue
		}
		visible = append(visible, d.ID)
	}
	sort.Strings(visible)
	return visible, nil
}
