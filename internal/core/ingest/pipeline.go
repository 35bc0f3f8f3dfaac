package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

// Pipeline turns a pending document into a ready one: fetch bytes, extract
// pages, chunk, embed, replace the chunk set, then flip the status. Every
// step before the status flip is idempotent, so a crashed or repeated run
// converges to the same result.
type Pipeline struct {
	catalog   core.DocumentCatalog
	chunks    core.ChunkStore
	content   core.ContentStore
	extractor core.DocumentExtractor
	embedder  core.EmbeddingProvider
	cfg       Config
	jobs      chan string
}

func NewPipeline(catalog core.DocumentCatalog, chunks core.ChunkStore, content core.ContentStore,
	extractor core.DocumentExtractor, embedder core.EmbeddingProvider, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &Pipeline{
		catalog:   catalog,
		chunks:    chunks,
		content:   content,
		extractor: extractor,
		embedder:  embedder,
		cfg:       cfg,
		jobs:      make(chan string, 64),
	}
}

// Start launches the worker goroutines draining the job queue.
func (p *Pipeline) Start(ctx context.Context) {
	for w := 1; w <= p.cfg.Workers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					return
				case docID := <-p.jobs:
					log.Printf("ingest: worker %d processing document %s", w, docID)
					if err := p.ProcessOne(ctx, docID); err != nil {
						log.Printf("ingest: document %s: %v", docID, err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion. Blocks when the queue is
// full.
func (p *Pipeline) Enqueue(docID string) {
	p.jobs <- docID
}

// ProcessOne runs the full pipeline for a single document.
//
// Failure semantics: any error before the final status flip leaves the
// document pending (transient, retry the whole pipeline) or failed (empty
// content, terminal until retried explicitly). The flip to ready happens
// only after the chunk transaction commits, so a reader observing ready
// always sees the complete chunk set.
func (p *Pipeline) ProcessOne(ctx context.Context, docID string) error {
	procCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	doc, err := p.catalog.GetDocument(procCtx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	switch doc.Status {
	case models.StatusReady:
		return nil
	case models.StatusDeleting:
		// Deletion preempted this ingest; nothing to do.
		return nil
	}

	data, err := p.content.Get(procCtx, doc.ContentKey)
	if err != nil {
		// Document stays pending; the caller may retry the whole run.
		return fmt.Errorf("fetch content %s: %w", doc.ContentKey, err)
	}

	pages, err := p.extractor.ExtractPages(procCtx, data, "application/pdf")
	if err != nil {
		if errors.Is(err, core.ErrEmptyDocument) {
			if serr := p.catalog.UpdateStatus(procCtx, docID, models.StatusFailed); serr != nil {
				log.Printf("ingest: mark failed %s: %v", docID, serr)
			}
		}
		return fmt.Errorf("extract %s: %w", docID, err)
	}

	drafts := buildChunks(pages, p.cfg.TargetTokens, p.cfg.OverlapTokens)
	if len(drafts) == 0 {
		if serr := p.catalog.UpdateStatus(procCtx, docID, models.StatusFailed); serr != nil {
			log.Printf("ingest: mark failed %s: %v", docID, serr)
		}
		return fmt.Errorf("chunk %s: %w", docID, core.ErrEmptyDocument)
	}

	vectors, err := p.embedAll(procCtx, drafts)
	if err != nil {
		// Partial embedding failure aborts the whole ingest; nothing was
		// persisted, the document stays pending.
		return fmt.Errorf("embed %s: %w", docID, err)
	}

	rows := make([]models.Chunk, len(drafts))
	for i, d := range drafts {
		rows[i] = models.Chunk{
			ID:         ChunkID(docID, d.Index),
			DocumentID: docID,
			ChunkIndex: d.Index,
			PageNumber: d.Page,
			Text:       d.Text,
			Embedding:  vectors[i],
		}
	}
	if err := p.chunks.ReplaceChunks(procCtx, docID, rows); err != nil {
		return fmt.Errorf("replace chunks %s: %w", docID, err)
	}

	// Only after the chunk set is fully committed. A deleting document
	// fails closed here instead of being resurrected.
	if err := p.catalog.UpdateStatus(procCtx, docID, models.StatusReady); err != nil {
		return fmt.Errorf("mark ready %s: %w", docID, err)
	}
	log.Printf("ingest: document %s ready (%d chunks)", docID, len(rows))
	return nil
}

// embedAll embeds drafts in batches. Batching is throughput only; any
// batch failure cancels the rest and fails the ingest.
func (p *Pipeline) embedAll(ctx context.Context, drafts []draft) ([][]float32, error) {
	vectors := make([][]float32, len(drafts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(drafts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(drafts) {
			end = len(drafts)
		}
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = drafts[i].Text
			}
			vecs, err := p.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(texts))
			}
			for i := range vecs {
				vectors[start+i] = vecs[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// ChunkID derives the stable chunk identity from (document_id, index), so
// re-ingesting the same document overwrites instead of duplicating.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", documentID, index))).String()
}
