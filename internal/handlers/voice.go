package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/internal/voice"
)

// VoiceStatusProvider reports the voice connection state per session.
type VoiceStatusProvider interface {
	Status(sessionID uuid.UUID) voice.Status
}

// VoiceHandler reports voice session state.
type VoiceHandler struct {
	voice  VoiceStatusProvider
	logger *slog.Logger
}

func NewVoiceHandler(voice VoiceStatusProvider, logger *slog.Logger) *VoiceHandler {
	return &VoiceHandler{
		voice:  voice,
		logger: logger,
	}
}

// ServeHTTP handles GET /v1/voice/session?session_id={id}.
func (h *VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		h.logger.Warn("Method not allowed for voice endpoint", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Method not allowed. Supported methods: GET"}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	idStr := r.URL.Query().Get("session_id")
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid session ID on voice status request", "id", idStr, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid session ID format"}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	status := h.voice.Status(sessionID)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("Failed to encode voice status response", "error", err)
	}
}
