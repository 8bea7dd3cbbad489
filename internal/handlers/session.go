package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/internal/router"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionHandler manages game session lifecycle over REST.
type SessionHandler struct {
	router *router.Router
	logger *slog.Logger
}

func NewSessionHandler(router *router.Router, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		router: router,
		logger: logger,
	}
}

// CreateSessionRequest defines the request body for creating a session.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// ListSessionsResponse wraps the listing so the array can grow fields
// without breaking clients.
type ListSessionsResponse struct {
	Sessions []uuid.UUID `json:"sessions"`
}

// ServeHTTP handles HTTP requests for session operations
// Routes:
// POST /v1/sessions        - Create new session
// GET /v1/sessions         - List session IDs
// GET /v1/sessions/{id}    - Read session by ID
// DELETE /v1/sessions/{id} - Delete session by ID
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.TrimPrefix(r.URL.Path, "/v1/sessions")
	var sessionID uuid.UUID
	var err error

	if path != "" && path != "/" {
		idStr := strings.Trim(path, "/")
		sessionID, err = uuid.Parse(idStr)
		if err != nil {
			h.logger.Warn("Invalid session ID", "id", idStr, "error", err)
			h.writeError(w, http.StatusBadRequest, "Invalid session ID format")
			return
		}
	}

	switch r.Method {
	case http.MethodPost:
		if sessionID != uuid.Nil {
			h.writeError(w, http.StatusBadRequest, "POST does not take a session ID")
			return
		}
		h.handleCreate(w, r)

	case http.MethodGet:
		if sessionID == uuid.Nil {
			h.handleList(w, r)
			return
		}
		h.handleRead(w, r, sessionID)

	case http.MethodDelete:
		if sessionID == uuid.Nil {
			h.logger.Warn("DELETE request without session ID")
			h.writeError(w, http.StatusBadRequest, "Session ID is required for DELETE requests")
			return
		}
		h.handleDelete(w, r, sessionID)

	default:
		h.logger.Warn("Method not allowed for session endpoint", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST, GET, DELETE")
	}
}

func (h *SessionHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Creating new session")

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		h.writeError(w, http.StatusBadRequest, "name field is required")
		return
	}

	sess, err := h.router.CreateSession(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("Failed to create session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.logger.Debug("Session created successfully", "id", sess.ID.String())
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(sess); err != nil {
		h.logger.Error("Failed to encode session response", "error", err)
	}
}

func (h *SessionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.router.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ListSessionsResponse{Sessions: ids}); err != nil {
		h.logger.Error("Failed to encode session list response", "error", err)
	}
}

func (h *SessionHandler) handleRead(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	sess, err := h.router.SessionSnapshot(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, router.ErrSessionNotFound) {
			h.logger.Warn("Session not found", "id", sessionID.String())
			h.writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to load session", "error", err, "id", sessionID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(sess); err != nil {
		h.logger.Error("Failed to encode session response", "error", err)
	}
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	if err := h.router.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, router.ErrSessionNotFound) {
			h.logger.Warn("Session not found for delete", "id", sessionID.String())
			h.writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to delete session", "error", err, "id", sessionID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	h.logger.Debug("Session deleted successfully", "id", sessionID.String())
	w.WriteHeader(http.StatusNoContent)
}
