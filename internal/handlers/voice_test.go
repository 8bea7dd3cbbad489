package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/internal/voice"
)

type stubVoiceStatus struct {
	status voice.Status
	lastID uuid.UUID
}

func (s *stubVoiceStatus) Status(sessionID uuid.UUID) voice.Status {
	s.lastID = sessionID
	return s.status
}

func TestVoiceHandler_Status(t *testing.T) {
	stub := &stubVoiceStatus{status: voice.Status{State: voice.StateActive, DataChannelOpen: true}}
	handler := NewVoiceHandler(stub, testLogger())

	sessionID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/voice/session?session_id="+sessionID.String(), nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response body: %s", rr.Code, rr.Body.String())
	}

	var status voice.Status
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.State != voice.StateActive {
		t.Errorf("Expected state %q, got %q", voice.StateActive, status.State)
	}
	if !status.DataChannelOpen {
		t.Error("Expected data channel to be reported open")
	}
	if stub.lastID != sessionID {
		t.Errorf("Expected status lookup for %s, got %s", sessionID, stub.lastID)
	}
}

func TestVoiceHandler_Errors(t *testing.T) {
	handler := NewVoiceHandler(&stubVoiceStatus{}, testLogger())

	tests := []struct {
		name           string
		method         string
		target         string
		expectedStatus int
	}{
		{
			name:           "missing session_id",
			method:         http.MethodGet,
			target:         "/v1/voice/session",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed session_id",
			method:         http.MethodGet,
			target:         "/v1/voice/session?session_id=nope",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unsupported method",
			method:         http.MethodPost,
			target:         "/v1/voice/session?session_id=" + uuid.New().String(),
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Response body: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
		})
	}
}
