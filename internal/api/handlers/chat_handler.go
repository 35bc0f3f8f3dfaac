package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	middleware "github.com/docurag/docurag/internal/api/middlewares"
	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/core/retrieval"
	"github.com/docurag/docurag/internal/services"
)

type ChatHandler struct {
	engine       *retrieval.Engine
	llm          core.LLMProvider
	workspace    *services.WorkspaceService
	queryTimeout time.Duration
}

func NewChatHandler(engine *retrieval.Engine, llm core.LLMProvider, workspace *services.WorkspaceService, queryTimeout time.Duration) *ChatHandler {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &ChatHandler{engine: engine, llm: llm, workspace: workspace, queryTimeout: queryTimeout}
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type queryResponse struct {
	Answer   string              `json:"answer"`
	Passages []retrieval.Passage `json:"passages"`
	Sources  []string            `json:"sources"`
}

// Query handles POST /api/chats/{chat_id}/query: scoped retrieval, then
// answer composition over the retrieved passages. The whole call runs
// under a deadline; on expiry the client gets a timeout error, never a
// truncated answer.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}

	chatID := chi.URLParam(r, "chat_id")
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	// Ownership check doubles as existence check.
	if _, err := h.workspace.GetChat(r.Context(), userID, chatID); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	result, err := h.engine.Query(ctx, chatID, req.Question, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Empty {
		writeJSON(w, http.StatusOK, queryResponse{
			Answer:   "No documents are attached to this chat yet. Upload a document first.",
			Passages: []retrieval.Passage{},
			Sources:  []string{},
		})
		return
	}

	answer, err := h.compose(ctx, req.Question, result)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.workspace.SaveMessage(ctx, userID, chatID, "user", req.Question, nil); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.workspace.SaveMessage(ctx, userID, chatID, "assistant", answer, result.Sources); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:   answer,
		Passages: result.Passages,
		Sources:  result.Sources,
	})
}

func (h *ChatHandler) compose(ctx context.Context, question string, result *retrieval.Result) (string, error) {
	var sb strings.Builder
	for _, p := range result.Passages {
		fmt.Fprintf(&sb, "- %s [source: %s, page %d]\n", p.Text, p.FileName, p.Page)
	}

	systemPrompt := "You answer using only the provided context. If the answer is not in the context, say so."
	userPrompt := fmt.Sprintf("Context:\n%s\nQuestion: %s\nAnswer using the context above. Cite sources inline when relevant.", sb.String(), question)

	answer, err := h.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
