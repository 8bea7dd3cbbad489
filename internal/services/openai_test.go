package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jwebster45206/gameweaver/pkg/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewOpenAIService(t *testing.T) {
	service := NewOpenAIService("test-api-key", "gpt-4o-mini", testLogger())

	if service.apiKey != "test-api-key" {
		t.Errorf("Expected API key test-api-key, got %s", service.apiKey)
	}
	if service.modelName != "gpt-4o-mini" {
		t.Errorf("Expected model name gpt-4o-mini, got %s", service.modelName)
	}
	if service.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
}

func TestNewOpenAIService_DefaultModel(t *testing.T) {
	service := NewOpenAIService("test-api-key", "", testLogger())
	if service.modelName != DefaultOpenAIModel {
		t.Errorf("Expected default model %s, got %s", DefaultOpenAIModel, service.modelName)
	}
}

func TestOpenAIService_InitModel(t *testing.T) {
	service := NewOpenAIService("test-key", "gpt-4o", testLogger())
	if err := service.InitModel(context.Background(), "gpt-4o"); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestOpenAIService_GenerateResponse(t *testing.T) {
	var gotAuth string
	var gotReq openAIChatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "chatcmpl-123",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "The crypt door groans open."}},
			},
		})
	}))
	defer server.Close()

	service := NewOpenAIService("test-key", "gpt-4o", testLogger()).WithBaseURL(server.URL)

	messages := []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "You are the game master."},
		{Role: chat.ChatRoleUser, Content: "I open the crypt door."},
	}
	resp, err := service.GenerateResponse(context.Background(), messages)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.Message != "The crypt door groans open." {
		t.Errorf("Unexpected message: %s", resp.Message)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Unexpected auth header: %s", gotAuth)
	}
	if gotReq.Model != "gpt-4o" {
		t.Errorf("Unexpected model in request: %s", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 {
		t.Errorf("Expected 2 messages sent, got %d", len(gotReq.Messages))
	}
}

func TestOpenAIService_GenerateResponse_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad key"}}`))
	}))
	defer server.Close()

	service := NewOpenAIService("bad-key", "gpt-4o", testLogger()).WithBaseURL(server.URL)

	_, err := service.GenerateResponse(context.Background(), []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "hello"},
	})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Errorf("Expected error to include API message, got %v", err)
	}
}

func TestOpenAIService_GenerateResponse_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chatcmpl-123","choices":[]}`))
	}))
	defer server.Close()

	service := NewOpenAIService("test-key", "gpt-4o", testLogger()).WithBaseURL(server.URL)

	_, err := service.GenerateResponse(context.Background(), []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "hello"},
	})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var gotReq openAIEmbeddingRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder("test-key", "", testLogger()).WithBaseURL(server.URL)

	vec, err := embedder.Embed(context.Background(), "skeletal warriors")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("Expected 3 dimensions, got %d", len(vec))
	}
	if vec[1] != 0.2 {
		t.Errorf("Unexpected vector value: %v", vec)
	}
	if gotReq.Model != DefaultEmbeddingModel {
		t.Errorf("Expected default embedding model, got %s", gotReq.Model)
	}
	if gotReq.Input != "skeletal warriors" {
		t.Errorf("Unexpected input: %s", gotReq.Input)
	}
}

func TestOpenAIEmbedder_Embed_TruncatesLongInput(t *testing.T) {
	var gotReq openAIEmbeddingRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1.0]}]}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder("test-key", "", testLogger()).WithBaseURL(server.URL)

	long := strings.Repeat("a", openAIMaxEmbedInputChars+500)
	if _, err := embedder.Embed(context.Background(), long); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(gotReq.Input) != openAIMaxEmbedInputChars {
		t.Errorf("Expected input truncated to %d chars, got %d", openAIMaxEmbedInputChars, len(gotReq.Input))
	}
}

func TestOpenAIEmbedder_Embed_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder("test-key", "", testLogger()).WithBaseURL(server.URL)

	_, err := embedder.Embed(context.Background(), "anything")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}
