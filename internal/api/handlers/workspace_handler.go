package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/docurag/docurag/internal/api/middlewares"
	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
	"github.com/docurag/docurag/internal/services"
)

type WorkspaceHandler struct {
	workspace *services.WorkspaceService
}

func NewWorkspaceHandler(workspace *services.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{workspace: workspace}
}

type createProjectRequest struct {
	Name string `json:"name"`
}

type createChatRequest struct {
	ProjectID *string `json:"project_id"` // nil = standalone chat
	Title     string  `json:"title"`
}

type updateChatRequest struct {
	Title    *string `json:"title"`
	IsPinned *bool   `json:"is_pinned"`
}

type saveMessageRequest struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Sources []string `json:"sources"`
}

func (h *WorkspaceHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	p, err := h.workspace.CreateProject(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *WorkspaceHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	projects, err := h.workspace.ListProjects(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *WorkspaceHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	p, err := h.workspace.GetProject(r.Context(), userID, chi.URLParam(r, "project_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *WorkspaceHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	if err := h.workspace.DeleteProject(r.Context(), userID, chi.URLParam(r, "project_id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *WorkspaceHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	c, err := h.workspace.CreateChat(r.Context(), userID, req.ProjectID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListChats supports ?project_id= to filter by project and ?standalone=true
// for chats without one.
func (h *WorkspaceHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}

	var projectID *string
	if pid := r.URL.Query().Get("project_id"); pid != "" {
		projectID = &pid
	} else if r.URL.Query().Get("standalone") == "true" {
		empty := ""
		projectID = &empty
	}

	chats, err := h.workspace.ListChats(r.Context(), userID, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *WorkspaceHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	c, err := h.workspace.GetChat(r.Context(), userID, chi.URLParam(r, "chat_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *WorkspaceHandler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	var req updateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	c, err := h.workspace.UpdateChat(r.Context(), userID, chi.URLParam(r, "chat_id"), req.Title, req.IsPinned)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *WorkspaceHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	if err := h.workspace.DeleteChat(r.Context(), userID, chi.URLParam(r, "chat_id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *WorkspaceHandler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	var req saveMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	m, err := h.workspace.SaveMessage(r.Context(), userID, chi.URLParam(r, "chat_id"), req.Role, req.Content, req.Sources)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *WorkspaceHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}
	messages, err := h.workspace.ListMessages(r.Context(), userID, chi.URLParam(r, "chat_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
