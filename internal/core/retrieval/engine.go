package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/docurag/docurag/internal/core"
)

// Passage is one ranked retrieval hit with its source attribution.
type Passage struct {
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"file_name"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// Result is the output of a scoped retrieval query. Empty is true when the
// chat has no searchable documents at all, so callers can render "upload a
// document first" instead of an empty answer.
type Result struct {
	Passages []Passage `json:"passages"`
	Sources  []string  `json:"sources"`
	Empty    bool      `json:"empty"`
}

// Engine runs scoped similarity search: resolve the chat's visible
// documents, embed the question, search restricted to those ids, attach
// filenames.
type Engine struct {
	resolver *Resolver
	chunks   core.ChunkStore
	catalog  core.DocumentCatalog
	embedder core.EmbeddingProvider
}

func NewEngine(resolver *Resolver, chunks core.ChunkStore, catalog core.DocumentCatalog, embedder core.EmbeddingProvider) *Engine {
	return &Engine{resolver: resolver, chunks: chunks, catalog: catalog, embedder: embedder}
}

// Query returns topK ranked passages for the question, searching only the
// documents visible to chatID. The caller's ctx deadline bounds the
// embedding call and the search; on expiry the error is returned rather
// than a partial result.
func (e *Engine) Query(ctx context.Context, chatID, question string, topK int) (*Result, error) {
	if topK <= 0 {
		topK = 5
	}

	ids, err := e.resolver.ResolveVisibleDocuments(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &Result{Empty: true}, nil
	}

	vecs, err := e.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: no vector returned")
	}

	hits, err := e.chunks.Search(ctx, ids, vecs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if len(hits) == 0 {
		return &Result{}, nil
	}

	// One batched catalog lookup for filename attribution, not N+1.
	docIDs := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.Chunk.DocumentID]; ok {
			continue
		}
		seen[h.Chunk.DocumentID] = struct{}{}
		docIDs = append(docIDs, h.Chunk.DocumentID)
	}
	docs, err := e.catalog.GetDocuments(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	names := make(map[string]string, len(docs))
	for _, d := range docs {
		names[d.ID] = d.FileName
	}

	res := &Result{Passages: make([]Passage, 0, len(hits))}
	sourceSeen := make(map[string]struct{})
	for _, h := range hits {
		p := Passage{
			DocumentID: h.Chunk.DocumentID,
			FileName:   names[h.Chunk.DocumentID],
			Page:       h.Chunk.PageNumber,
			ChunkIndex: h.Chunk.ChunkIndex,
			Text:       h.Chunk.Text,
			Score:      h.Score,
		}
		res.Passages = append(res.Passages, p)

		src := fmt.Sprintf("%s, page %d", p.FileName, p.Page)
		if _, ok := sourceSeen[src]; !ok {
			sourceSeen[src] = struct{}{}
			res.Sources = append(res.Sources, src)
		}
	}

	// The store already orders by distance with a deterministic tie-break;
	// re-assert it here so engine output stays stable regardless of the
	// backing implementation.
	sort.SliceStable(res.Passages, func(i, j int) bool {
		a, b := res.Passages[i], res.Passages[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.ChunkIndex < b.ChunkIndex
	})
	return res, nil
}
