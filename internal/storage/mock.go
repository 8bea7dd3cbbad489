package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/internal/retrieval"
	"github.com/jwebster45206/gameweaver/pkg/session"
)

// MockStorage is an in-memory Storage implementation for testing
type MockStorage struct {
	SaveSessionFunc func(ctx context.Context, id uuid.UUID, sess *session.Session) error
	LoadSessionFunc func(ctx context.Context, id uuid.UUID) (*session.Session, error)

	sessions map[uuid.UUID]*session.Session
	chunks   map[string][]retrieval.Chunk

	SaveSessionCalls []uuid.UUID

	mu sync.Mutex
}

var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new in-memory mock
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions:         make(map[uuid.UUID]*session.Session),
		chunks:           make(map[string][]retrieval.Chunk),
		SaveSessionCalls: make([]uuid.UUID, 0),
	}
}

func (m *MockStorage) Ping(ctx context.Context) error {
	return nil
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveSession(ctx context.Context, id uuid.UUID, sess *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveSessionCalls = append(m.SaveSessionCalls, id)

	if m.SaveSessionFunc != nil {
		return m.SaveSessionFunc(ctx, id, sess)
	}

	m.sessions[id] = sess
	return nil
}

func (m *MockStorage) LoadSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadSessionFunc != nil {
		return m.LoadSessionFunc(ctx, id)
	}

	return m.sessions[id], nil
}

func (m *MockStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MockStorage) ListSessions(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MockStorage) SaveChunks(ctx context.Context, sourceFile string, chunks []retrieval.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]retrieval.Chunk, len(chunks))
	copy(copied, chunks)
	m.chunks[sourceFile] = copied
	return nil
}

func (m *MockStorage) LoadChunks(ctx context.Context) ([]retrieval.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []retrieval.Chunk
	for _, chunks := range m.chunks {
		all = append(all, chunks...)
	}
	return all, nil
}

// SetSaveSessionFunc swaps the SaveSession behavior in a thread-safe way
func (m *MockStorage) SetSaveSessionFunc(f func(ctx context.Context, id uuid.UUID, sess *session.Session) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveSessionFunc = f
}

// SaveCount returns the number of SaveSession calls in a thread-safe way
func (m *MockStorage) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SaveSessionCalls)
}
