package app

import (
	"context"
	"fmt"
	"log"

	"github.com/docurag/docurag/internal/config"
	"github.com/docurag/docurag/internal/core/content"
	db "github.com/docurag/docurag/internal/core/database"
	"github.com/docurag/docurag/internal/core/ingest"
	"github.com/docurag/docurag/internal/core/llm"
	"github.com/docurag/docurag/internal/core/retrieval"
	"github.com/docurag/docurag/internal/services"
)

type App struct {
	DBClient  *db.DatabaseClient
	Pipeline  *ingest.Pipeline
	Documents *services.DocumentService
	Server    *Server

	cancel context.CancelFunc
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	dbClient, err := db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.Println("database initialized and bootstrapped")

	contentStore, err := content.NewS3ContentStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	llmProvider, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	pipeline := ingest.NewPipeline(dbClient, dbClient, contentStore, ingest.NewDocconvExtractor(), embedder, ingest.Config{
		TargetTokens:  cfg.TargetTokens,
		OverlapTokens: cfg.OverlapTokens,
		BatchSize:     cfg.BatchSize,
		Workers:       cfg.IngestWorkers,
	})

	documents := services.NewDocumentService(dbClient, dbClient, dbClient, contentStore, dbClient, pipeline.Enqueue, cfg.MaxUploadBytes)
	workspace := services.NewWorkspaceService(dbClient, documents)
	users := services.NewUserService(dbClient)

	resolver := retrieval.NewResolver(dbClient, dbClient, dbClient)
	engine := retrieval.NewEngine(resolver, dbClient, dbClient, embedder)

	server := NewServer(cfg, documents, workspace, users, engine, llmProvider)

	workCtx, cancel := context.WithCancel(ctx)
	pipeline.Start(workCtx)
	go documents.RunJanitor(workCtx, cfg.JanitorInterval)

	return &App{
		DBClient:  dbClient,
		Pipeline:  pipeline,
		Documents: documents,
		Server:    server,
		cancel:    cancel,
	}, nil
}

func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
