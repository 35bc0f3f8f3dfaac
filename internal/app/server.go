package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/docurag/docurag/internal/api/handlers"
	appMiddleware "github.com/docurag/docurag/internal/api/middlewares"
	"github.com/docurag/docurag/internal/config"
	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/core/retrieval"
	"github.com/docurag/docurag/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, documents *services.DocumentService, workspace *services.WorkspaceService,
	users *services.UserService, engine *retrieval.Engine, llm core.LLMProvider) *Server {

	authHandler := handlers.NewAuthHandler(users, cfg.JWTSecret)
	docHandler := handlers.NewDocumentHandler(documents, cfg.MaxUploadBytes)
	chatHandler := handlers.NewChatHandler(engine, llm, workspace, cfg.QueryTimeout)
	wsHandler := handlers.NewWorkspaceHandler(workspace)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

			protected.Post("/projects", wsHandler.CreateProject)
			protected.Get("/projects", wsHandler.ListProjects)
			protected.Get("/projects/{project_id}", wsHandler.GetProject)
			protected.Delete("/projects/{project_id}", wsHandler.DeleteProject)

			protected.Post("/chats", wsHandler.CreateChat)
			protected.Get("/chats", wsHandler.ListChats)
			protected.Get("/chats/{chat_id}", wsHandler.GetChat)
			protected.Patch("/chats/{chat_id}", wsHandler.UpdateChat)
			protected.Delete("/chats/{chat_id}", wsHandler.DeleteChat)
			protected.Get("/chats/{chat_id}/messages", wsHandler.ListMessages)
			protected.Post("/chats/{chat_id}/messages", wsHandler.SaveMessage)
			protected.Post("/chats/{chat_id}/query", chatHandler.Query)

			protected.Post("/upload", docHandler.Upload)
			protected.Get("/documents", docHandler.List)
			protected.Delete("/documents/{document_id}", docHandler.Remove)
			protected.Get("/documents/{document_id}/status", docHandler.Status)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
