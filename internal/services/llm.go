package services

import (
	"context"

	"github.com/jwebster45206/gameweaver/pkg/chat"
)

// LLMService defines the interface for the external narration service.
type LLMService interface {
	// InitModel prepares the model for use on startup.
	InitModel(ctx context.Context, modelName string) error

	// GenerateResponse generates a game master reply from the
	// assembled context window.
	GenerateResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
}

// Embedder computes a fixed-length vector for a piece of text.
// retrieval.Index consumes this through its own interface; this is the
// provider side.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
