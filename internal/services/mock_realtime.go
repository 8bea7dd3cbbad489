package services

import (
	"context"
	"sync"
	"time"
)

// MockRealtimeService is a mock implementation of RealtimeService for testing
type MockRealtimeService struct {
	CreateEphemeralKeyFunc func(ctx context.Context, voiceID string) (*EphemeralKey, error)
	ExchangeSDPFunc        func(ctx context.Context, key *EphemeralKey, offerSDP string) (string, error)

	CreateEphemeralKeyCalls []string
	ExchangeSDPCalls        []string

	mu sync.Mutex
}

// NewMockRealtimeService creates a new mock realtime service
func NewMockRealtimeService() *MockRealtimeService {
	return &MockRealtimeService{
		CreateEphemeralKeyCalls: make([]string, 0),
		ExchangeSDPCalls:        make([]string, 0),
	}
}

// CreateEphemeralKey mocks key minting
func (m *MockRealtimeService) CreateEphemeralKey(ctx context.Context, voiceID string) (*EphemeralKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateEphemeralKeyCalls = append(m.CreateEphemeralKeyCalls, voiceID)

	if m.CreateEphemeralKeyFunc != nil {
		return m.CreateEphemeralKeyFunc(ctx, voiceID)
	}
	return &EphemeralKey{
		Secret:    "mock-secret",
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil
}

// ExchangeSDP mocks the offer/answer exchange
func (m *MockRealtimeService) ExchangeSDP(ctx context.Context, key *EphemeralKey, offerSDP string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExchangeSDPCalls = append(m.ExchangeSDPCalls, offerSDP)

	if m.ExchangeSDPFunc != nil {
		return m.ExchangeSDPFunc(ctx, key, offerSDP)
	}
	return "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=mock\r\nt=0 0\r\n", nil
}

// SetExchangeSDPError sets up the mock to return an error on ExchangeSDP
func (m *MockRealtimeService) SetExchangeSDPError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExchangeSDPFunc = func(ctx context.Context, key *EphemeralKey, offerSDP string) (string, error) {
		return "", err
	}
}
