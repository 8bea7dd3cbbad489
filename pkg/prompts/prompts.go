// Package prompts assembles the narration context window: system
// persona, session summary, recent history, and retrieved adventure
// excerpts.
package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/gameweaver/pkg/chat"
	"github.com/jwebster45206/gameweaver/pkg/session"
)

// DefaultHistoryLimit is how many recent history events are included
// in the context window when the caller does not override it.
const DefaultHistoryLimit = 10

// systemPersona is the game master persona. The tone and output-format
// instruction follow the original campaign setup.
const systemPersona = `You are the Game Master for a Mörk Borg roleplaying game.
Mörk Borg is a dark fantasy RPG with apocalyptic themes. Maintain a grim, atmospheric, and slightly menacing tone.

Respond as a descriptive, atmospheric game master. Be concise yet vivid.
Create dramatic and immersive narratives. When appropriate, call for dice rolls; do not roll dice yourself.

**Output Format:** Provide only the dialogue or narration directly. Example: ` + "`The air grows cold.`"

// Builder constructs chat messages for LLM interaction using a fluent
// interface. It separates prompt assembly from session state management.
type Builder struct {
	sess         *session.Session
	chunks       []string
	userMessage  string
	historyLimit int
}

// New creates a prompt builder with default settings.
func New() *Builder {
	return &Builder{historyLimit: DefaultHistoryLimit}
}

// WithSession sets the session whose state and history frame the prompt.
func (b *Builder) WithSession(s *session.Session) *Builder {
	b.sess = s
	return b
}

// WithChunks adds retrieved adventure-text excerpts, most relevant first.
func (b *Builder) WithChunks(chunks []string) *Builder {
	b.chunks = chunks
	return b
}

// WithUserMessage sets the player's freeform input.
func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// WithHistoryLimit sets the history window size.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.historyLimit = limit
	return b
}

// Build constructs the final message array for LLM consumption.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if b.sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if b.userMessage == "" {
		return nil, fmt.Errorf("user message is required")
	}

	var sb strings.Builder
	sb.WriteString(systemPersona)

	sb.WriteString("\n\nCurrent game state: ")
	sb.WriteString(b.sess.Summary())

	if history := b.sess.RecentHistory(b.historyLimit); len(history) > 0 {
		sb.WriteString("\n\nRecent game history:\n")
		for _, ev := range history {
			sb.WriteString(formatEvent(ev))
			sb.WriteByte('\n')
		}
	}

	if len(b.chunks) > 0 {
		sb.WriteString("\nRelevant adventure text:\n")
		for _, c := range b.chunks {
			sb.WriteString("---\n")
			sb.WriteString(c)
			sb.WriteByte('\n')
		}
	}

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: sb.String()},
		{Role: chat.ChatRoleUser, Content: b.userMessage},
	}, nil
}

func formatEvent(ev session.Event) string {
	switch ev.Type {
	case session.EventPlayerCommand:
		actor := ev.Actor
		if actor == "" {
			actor = "Player"
		}
		return chat.FormatWithPCName(ev.Text, actor)
	case session.EventNarration:
		return fmt.Sprintf("GM: %s", ev.Text)
	default:
		return fmt.Sprintf("[%s] %s", ev.Type, ev.Text)
	}
}
