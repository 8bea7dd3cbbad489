package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/gameweaver/pkg/chat"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"

	DefaultOpenAIModel       = "gpt-4o"
	DefaultOpenAIMaxTokens   = 500
	DefaultEmbeddingModel    = "text-embedding-3-small"
	openAIRequestTimeout     = 120 * time.Second
	openAIEmbeddingTimeout   = 30 * time.Second
	openAIMaxEmbedInputChars = 8000
)

// OpenAIService implements LLMService against the OpenAI chat
// completions API.
type OpenAIService struct {
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

type openAIChatRequest struct {
	Model     string             `json:"model"`
	Messages  []chat.ChatMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message chat.ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIService creates a narration service client.
func NewOpenAIService(apiKey, modelName string, logger *slog.Logger) *OpenAIService {
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return &OpenAIService{
		apiKey:    apiKey,
		baseURL:   openAIBaseURL,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: openAIRequestTimeout,
		},
		logger: logger,
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (o *OpenAIService) WithBaseURL(baseURL string) *OpenAIService {
	o.baseURL = baseURL
	return o
}

// InitModel is a no-op for OpenAI; models are hosted.
func (o *OpenAIService) InitModel(ctx context.Context, modelName string) error {
	return nil
}

// GenerateResponse sends the context window to the chat completions
// endpoint and returns the game master reply.
func (o *OpenAIService) GenerateResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	reqBody := openAIChatRequest{
		Model:     o.modelName,
		Messages:  messages,
		MaxTokens: DefaultOpenAIMaxTokens,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	o.logger.Debug("Narration generated",
		"model", o.modelName, "response_id", parsed.ID)

	return &chat.ChatResponse{Message: parsed.Choices[0].Message.Content}, nil
}

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API.
type OpenAIEmbedder struct {
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIEmbedder creates an embedding client.
func NewOpenAIEmbedder(apiKey, modelName string, logger *slog.Logger) *OpenAIEmbedder {
	if modelName == "" {
		modelName = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		apiKey:    apiKey,
		baseURL:   openAIBaseURL,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: openAIEmbeddingTimeout,
		},
		logger: logger,
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (o *OpenAIEmbedder) WithBaseURL(baseURL string) *OpenAIEmbedder {
	o.baseURL = baseURL
	return o
}

// Embed computes the embedding vector for one piece of text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > openAIMaxEmbedInputChars {
		text = text[:openAIMaxEmbedInputChars]
	}

	data, err := json.Marshal(openAIEmbeddingRequest{Model: o.modelName, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embedding data")
	}

	return parsed.Data[0].Embedding, nil
}
