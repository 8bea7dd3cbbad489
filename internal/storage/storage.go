package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/internal/retrieval"
	"github.com/jwebster45206/gameweaver/pkg/session"
)

// HealthChecker defines basic health check capabilities
type HealthChecker interface {
	// Ping tests the service connection
	Ping(ctx context.Context) error
}

// Closer defines cleanup capabilities
type Closer interface {
	// Close closes the service connection
	Close() error
}

// Storage defines the interface for session and chunk persistence.
// The chunk methods satisfy retrieval.ChunkStore so the index can
// mirror its in-memory state through the same backend.
type Storage interface {
	HealthChecker
	Closer

	// SaveSession saves a session under its UUID
	SaveSession(ctx context.Context, id uuid.UUID, sess *session.Session) error

	// LoadSession retrieves a session by UUID
	// Returns nil if the session doesn't exist
	LoadSession(ctx context.Context, id uuid.UUID) (*session.Session, error)

	// DeleteSession removes a session by UUID
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// ListSessions returns the UUIDs of all saved sessions
	ListSessions(ctx context.Context) ([]uuid.UUID, error)

	// SaveChunks replaces the stored chunks for a source file
	SaveChunks(ctx context.Context, sourceFile string, chunks []retrieval.Chunk) error

	// LoadChunks retrieves all stored chunks across source files
	LoadChunks(ctx context.Context) ([]retrieval.Chunk, error)
}
