package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/internal/router"
	"github.com/jwebster45206/gameweaver/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDispatcher struct {
	mu        sync.Mutex
	handled   []string
	broadcast []router.Event
}

func (d *fakeDispatcher) Handle(ctx context.Context, sessionID uuid.UUID, raw string, origin router.ClientChannel) (router.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handled = append(d.handled, raw)
	return router.Event{Message: "ok"}, nil
}

func (d *fakeDispatcher) Broadcast(ctx context.Context, sessionID uuid.UUID, ev router.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcast = append(d.broadcast, ev)
	return nil
}

func (d *fakeDispatcher) handledCommands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.handled))
	copy(out, d.handled)
	return out
}

func (d *fakeDispatcher) broadcasts() []router.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]router.Event, len(d.broadcast))
	copy(out, d.broadcast)
	return out
}

func TestManager_StatusIdleByDefault(t *testing.T) {
	m := NewManager(services.NewMockRealtimeService(), &fakeDispatcher{}, testLogger())

	st := m.Status(uuid.New())
	if st.State != StateIdle {
		t.Errorf("Expected Idle, got %s", st.State)
	}
	if st.DataChannelOpen {
		t.Error("Expected closed data channel")
	}
}

func TestManager_Enable_KeyMintFailure(t *testing.T) {
	rt := services.NewMockRealtimeService()
	rt.CreateEphemeralKeyFunc = func(ctx context.Context, voiceID string) (*services.EphemeralKey, error) {
		return nil, fmt.Errorf("service unavailable")
	}
	m := NewManager(rt, &fakeDispatcher{}, testLogger())
	sessionID := uuid.New()

	err := m.Enable(context.Background(), sessionID, "")
	if err == nil {
		t.Fatal("Expected handshake error")
	}
	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("Expected HandshakeError, got %T", err)
	}

	st := m.Status(sessionID)
	if st.State != StateFailed {
		t.Errorf("Expected Failed after handshake error, got %s", st.State)
	}
	if st.DataChannelOpen {
		t.Error("No resources may stay acquired after a failed handshake")
	}
}

func TestManager_Enable_ExpiredKey(t *testing.T) {
	rt := services.NewMockRealtimeService()
	rt.CreateEphemeralKeyFunc = func(ctx context.Context, voiceID string) (*services.EphemeralKey, error) {
		return &services.EphemeralKey{Secret: "ek", ExpiresAt: time.Now().Add(-time.Minute)}, nil
	}
	m := NewManager(rt, &fakeDispatcher{}, testLogger())
	sessionID := uuid.New()

	if err := m.Enable(context.Background(), sessionID, ""); err == nil {
		t.Fatal("Expected error for expired key")
	}
	if st := m.Status(sessionID); st.State != StateFailed {
		t.Errorf("Expected Failed, got %s", st.State)
	}
}

func TestManager_Enable_BadAnswerSDP(t *testing.T) {
	// The mock's default answer is not a valid remote description, so
	// the handshake runs the full local leg (offer, ICE gathering,
	// exchange) and fails setting the remote description.
	m := NewManager(services.NewMockRealtimeService(), &fakeDispatcher{}, testLogger())
	sessionID := uuid.New()

	err := m.Enable(context.Background(), sessionID, "ash")
	if err == nil {
		t.Fatal("Expected handshake error for bad answer SDP")
	}
	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("Expected HandshakeError, got %T: %v", err, err)
	}

	st := m.Status(sessionID)
	if st.State != StateFailed {
		t.Errorf("Expected Failed, got %s", st.State)
	}
	if st.DataChannelOpen {
		t.Error("Data channel must not stay open after a failed handshake")
	}
	if !st.KeyExpiresAt.IsZero() {
		t.Error("Ephemeral key must be dropped after a failed handshake")
	}
}

func TestManager_Enable_RetryAfterFailed(t *testing.T) {
	rt := services.NewMockRealtimeService()
	rt.CreateEphemeralKeyFunc = func(ctx context.Context, voiceID string) (*services.EphemeralKey, error) {
		return nil, fmt.Errorf("still down")
	}
	m := NewManager(rt, &fakeDispatcher{}, testLogger())
	sessionID := uuid.New()

	if err := m.Enable(context.Background(), sessionID, ""); err == nil {
		t.Fatal("Expected first attempt to fail")
	}

	// A Failed session may retry; it must not be rejected as already on
	err := m.Enable(context.Background(), sessionID, "")
	if err == nil {
		t.Fatal("Expected second attempt to fail")
	}
	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Errorf("Retry should reach the handshake, got %v", err)
	}
}

func TestManager_TeardownDuringHandshake(t *testing.T) {
	m := NewManager(services.NewMockRealtimeService(), &fakeDispatcher{}, testLogger())
	sessionID := uuid.New()

	// A transport callback can close the session on its own goroutine
	// while the handshake is still in flight.
	vs := &voiceSession{state: StateConnecting}
	m.mu.Lock()
	m.sessions[sessionID] = vs
	m.mu.Unlock()

	m.close(sessionID, vs, "transport failed")

	if vs.activate() {
		t.Error("Closed session activated")
	}
	if st := m.Status(sessionID); st.State != StateClosed {
		t.Errorf("State = %s, want %s", st.State, StateClosed)
	}
}

func TestManager_Disable_NotOn(t *testing.T) {
	m := NewManager(services.NewMockRealtimeService(), &fakeDispatcher{}, testLogger())
	if err := m.Disable(uuid.New()); err == nil {
		t.Error("Expected error when voice was never enabled")
	}
}

func TestManager_ChannelMessages(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	m := NewManager(services.NewMockRealtimeService(), dispatcher, testLogger())
	sessionID := uuid.New()

	m.handleChannelMessage(sessionID, []byte(`{"type":"transcription","text":"I draw my sword"}`))

	// Transcriptions dispatch asynchronously
	deadline := time.Now().Add(2 * time.Second)
	for len(dispatcher.handledCommands()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Transcription was not forwarded to the router")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := dispatcher.handledCommands()[0]; got != "I draw my sword" {
		t.Errorf("Unexpected forwarded command %q", got)
	}

	m.handleChannelMessage(sessionID, []byte(`{"type":"agent_response","text":"Steel rings in the dark."}`))
	bs := dispatcher.broadcasts()
	if len(bs) != 1 || bs[0].Message != "Steel rings in the dark." {
		t.Errorf("Expected agent response broadcast, got %v", bs)
	}

	// Malformed and unknown events are dropped quietly
	m.handleChannelMessage(sessionID, []byte(`not json`))
	m.handleChannelMessage(sessionID, []byte(`{"type":"noise","text":"x"}`))
	m.handleChannelMessage(sessionID, []byte(`{"type":"transcription","text":""}`))
}
