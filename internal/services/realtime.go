package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultRealtimeModel  = "gpt-4o-realtime-preview"
	DefaultRealtimeVoice  = "verse"
	realtimeClientTimeout = 30 * time.Second
)

// EphemeralKey is a short-lived credential for a realtime voice
// session. The secret is handed to the peer connection handshake and
// must not be persisted.
type EphemeralKey struct {
	Secret    string    `json:"secret"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the key is no longer usable.
func (k EphemeralKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// RealtimeService mints ephemeral keys and exchanges SDP offers with
// the hosted realtime voice API.
type RealtimeService interface {
	CreateEphemeralKey(ctx context.Context, voiceID string) (*EphemeralKey, error)
	ExchangeSDP(ctx context.Context, key *EphemeralKey, offerSDP string) (string, error)
}

// OpenAIRealtimeService implements RealtimeService against the OpenAI
// realtime API.
type OpenAIRealtimeService struct {
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

type realtimeSessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

type realtimeSessionResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIRealtimeService creates a realtime voice client.
func NewOpenAIRealtimeService(apiKey, modelName string, logger *slog.Logger) *OpenAIRealtimeService {
	if modelName == "" {
		modelName = DefaultRealtimeModel
	}
	return &OpenAIRealtimeService{
		apiKey:    apiKey,
		baseURL:   openAIBaseURL,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: realtimeClientTimeout,
		},
		logger: logger,
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (r *OpenAIRealtimeService) WithBaseURL(baseURL string) *OpenAIRealtimeService {
	r.baseURL = baseURL
	return r
}

// CreateEphemeralKey mints a short-lived session credential.
func (r *OpenAIRealtimeService) CreateEphemeralKey(ctx context.Context, voiceID string) (*EphemeralKey, error) {
	if voiceID == "" {
		voiceID = DefaultRealtimeVoice
	}

	data, err := json.Marshal(realtimeSessionRequest{Model: r.modelName, Voice: voiceID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/realtime/sessions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read session response: %w", err)
	}

	var parsed realtimeSessionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}
	if parsed.ClientSecret.Value == "" {
		return nil, fmt.Errorf("openai returned empty client secret")
	}

	key := &EphemeralKey{
		Secret:    parsed.ClientSecret.Value,
		ExpiresAt: time.Unix(parsed.ClientSecret.ExpiresAt, 0),
	}
	r.logger.Debug("Ephemeral key minted",
		"model", r.modelName, "expires_at", key.ExpiresAt)
	return key, nil
}

// ExchangeSDP posts a local SDP offer and returns the remote answer.
// The ephemeral key authenticates the exchange; an expired key is
// rejected before any network call.
func (r *OpenAIRealtimeService) ExchangeSDP(ctx context.Context, key *EphemeralKey, offerSDP string) (string, error) {
	if key == nil {
		return "", fmt.Errorf("ephemeral key is required")
	}
	if key.Expired(time.Now()) {
		return "", fmt.Errorf("ephemeral key expired at %s", key.ExpiresAt.Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/realtime?model="+r.modelName, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("failed to create SDP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+key.Secret)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("SDP exchange failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read SDP answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("SDP exchange returned status %d: %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return "", fmt.Errorf("SDP exchange returned empty answer")
	}

	return string(body), nil
}
