package chat

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxMessageLength caps a single player message in characters.
	MaxMessageLength = 4000

	// maxSpeakerLength bounds how far into a message a speaker prefix
	// may sit before the colon is read as sentence punctuation.
	maxSpeakerLength = 50
)

// ChatRequest represents a chat message request made by a player
// to the gameweaver api.
type ChatRequest struct {
	SessionID uuid.UUID `json:"session_id"` // Unique ID for the game session
	Message   string    `json:"message"`
}

// ChatResponse represents a chat message response returned by the gameweaver api.
type ChatResponse struct {
	SessionID uuid.UUID     `json:"session_id,omitempty"`
	Message   string        `json:"message,omitempty"`
	History   []ChatMessage `json:"history,omitempty"`
	Error     string        `json:"error,omitempty"`
}

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // Game master
	ChatRoleSystem = "system"    // Narration setup or system notice
)

// ChatMessage represents a single chat message in the conversation.
// This shape matches the OpenAI chat completions API and is used to
// structure messages sent to the LLM.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

func (cr *ChatRequest) Validate() error {
	if cr.Message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if len(cr.Message) > MaxMessageLength {
		return fmt.Errorf("message exceeds maximum length of %d characters", MaxMessageLength)
	}
	return nil
}

// FormatWithPCName prefixes a player message with the character's name
// so the LLM sees who is speaking. Messages already carrying a speaker
// prefix pass through unchanged; a colon deep in the sentence is read
// as punctuation, not a speaker.
func FormatWithPCName(message, pcName string) string {
	if idx := strings.Index(message, ":"); idx >= 0 && idx <= maxSpeakerLength {
		return message
	}
	return pcName + ": " + message
}
