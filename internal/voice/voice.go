// Package voice manages the realtime audio channel lifecycle. Each
// game session gets at most one voice session, modeled as an explicit
// state machine rather than a web of transport callbacks. Transcribed
// speech enters the command router exactly as typed input would.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/jwebster45206/gameweaver/internal/router"
	"github.com/jwebster45206/gameweaver/internal/services"
)

// State is the lifecycle position of one voice session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosed     State = "closed"
	StateFailed     State = "failed"
)

const iceGatherTimeout = 15 * time.Second

// HandshakeError wraps any failure between "voice on" and an open
// data channel. The session lands in Failed and may be retried.
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("voice handshake failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("voice handshake failed: %s", e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// channelMessage is one event on the realtime data channel.
type channelMessage struct {
	Type string `json:"type"` // "transcription" or "agent_response"
	Text string `json:"text"`
}

// Dispatcher is the command-router surface the voice layer needs:
// transcriptions go in as commands, agent responses fan out to
// subscribers.
type Dispatcher interface {
	Handle(ctx context.Context, sessionID uuid.UUID, raw string, origin router.ClientChannel) (router.Event, error)
	Broadcast(ctx context.Context, sessionID uuid.UUID, ev router.Event) error
}

// Status is a point-in-time view of one voice session.
type Status struct {
	State           State     `json:"state"`
	DataChannelOpen bool      `json:"data_channel_open"`
	KeyExpiresAt    time.Time `json:"key_expires_at,omitempty"`
}

// Manager owns every voice session, keyed by game session id.
type Manager struct {
	realtime   services.RealtimeService
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*voiceSession
}

// voiceSession is the per-session state machine. All field access is
// under mu.
type voiceSession struct {
	mu              sync.Mutex
	state           State
	key             *services.EphemeralKey
	pc              *webrtc.PeerConnection
	dc              *webrtc.DataChannel
	dataChannelOpen bool
}

var _ router.VoiceController = (*Manager)(nil)

// NewManager creates a voice manager.
func NewManager(realtime services.RealtimeService, dispatcher Dispatcher, logger *slog.Logger) *Manager {
	return &Manager{
		realtime:   realtime,
		dispatcher: dispatcher,
		logger:     logger,
		sessions:   make(map[uuid.UUID]*voiceSession),
	}
}

// Status reports the current voice state for a session. Sessions that
// never turned voice on report Idle.
func (m *Manager) Status(sessionID uuid.UUID) Status {
	m.mu.Lock()
	vs, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Status{State: StateIdle}
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()
	st := Status{State: vs.state, DataChannelOpen: vs.dataChannelOpen}
	if vs.key != nil {
		st.KeyExpiresAt = vs.key.ExpiresAt
	}
	return st
}

// Enable runs the connect handshake for a session. Idle, Failed, and
// Closed sessions may connect; a session already Connecting or Active
// is rejected.
func (m *Manager) Enable(ctx context.Context, sessionID uuid.UUID, voiceID string) error {
	m.mu.Lock()
	vs, ok := m.sessions[sessionID]
	if !ok {
		vs = &voiceSession{state: StateIdle}
		m.sessions[sessionID] = vs
	}
	m.mu.Unlock()

	vs.mu.Lock()
	switch vs.state {
	case StateConnecting, StateActive:
		vs.mu.Unlock()
		return fmt.Errorf("voice is already %s", vs.state)
	case StateFailed, StateClosed:
		// Retry path re-enters through Idle
		vs.state = StateIdle
	}
	vs.state = StateConnecting
	vs.mu.Unlock()

	if err := m.connect(ctx, sessionID, vs, voiceID); err != nil {
		vs.mu.Lock()
		m.releaseLocked(vs)
		vs.state = StateFailed
		vs.mu.Unlock()
		m.logger.Error("Voice handshake failed", "session_id", sessionID, "error", err)
		return err
	}

	if !vs.activate() {
		// A transport callback tore the session down mid-handshake.
		m.logger.Warn("Voice session closed during handshake", "session_id", sessionID)
		return fmt.Errorf("voice session closed during handshake")
	}
	m.logger.Info("Voice session active", "session_id", sessionID)
	return nil
}

// activate promotes a Connecting session to Active. A session torn
// down between handshake completion and this call stays down.
func (vs *voiceSession) activate() bool {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.state != StateConnecting {
		return false
	}
	vs.state = StateActive
	return true
}

// Disable tears the voice session down. Safe to call in any state.
func (m *Manager) Disable(sessionID uuid.UUID) error {
	m.mu.Lock()
	vs, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("voice is not on")
	}

	m.close(sessionID, vs, "voice turned off")
	return nil
}

// connect performs the handshake. On any error the caller releases
// resources and transitions to Failed.
func (m *Manager) connect(ctx context.Context, sessionID uuid.UUID, vs *voiceSession, voiceID string) error {
	key, err := m.realtime.CreateEphemeralKey(ctx, voiceID)
	if err != nil {
		return &HandshakeError{Reason: "minting ephemeral key", Err: err}
	}
	if key.Expired(time.Now()) {
		return &HandshakeError{Reason: "ephemeral key already expired"}
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return &HandshakeError{Reason: "creating peer connection", Err: err}
	}

	vs.mu.Lock()
	vs.key = key
	vs.pc = pc
	vs.mu.Unlock()

	dc, err := pc.CreateDataChannel("events", nil)
	if err != nil {
		return &HandshakeError{Reason: "creating data channel", Err: err}
	}

	vs.mu.Lock()
	vs.dc = dc
	vs.mu.Unlock()

	dc.OnOpen(func() {
		vs.mu.Lock()
		vs.dataChannelOpen = true
		vs.mu.Unlock()
		m.logger.Debug("Voice data channel open", "session_id", sessionID)
	})
	dc.OnClose(func() {
		go m.close(sessionID, vs, "data channel closed")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		m.handleChannelMessage(sessionID, msg.Data)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			// Closing from inside the callback can deadlock pion
			go m.close(sessionID, vs, "transport "+state.String())
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return &HandshakeError{Reason: "creating offer", Err: err}
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return &HandshakeError{Reason: "setting local description", Err: err}
	}

	// Vanilla ICE: gather every candidate before signaling so the
	// exchange is a single round-trip.
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return &HandshakeError{Reason: "ICE gathering timed out"}
	case <-ctx.Done():
		return &HandshakeError{Reason: "cancelled", Err: ctx.Err()}
	}

	answerSDP, err := m.realtime.ExchangeSDP(ctx, key, pc.LocalDescription().SDP)
	if err != nil {
		return &HandshakeError{Reason: "exchanging SDP", Err: err}
	}

	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return &HandshakeError{Reason: "setting remote description", Err: err}
	}

	return nil
}

// handleChannelMessage routes one data channel event. Transcriptions
// enter the serialized command queue like any typed command; agent
// responses fan out to the session's subscribers.
func (m *Manager) handleChannelMessage(sessionID uuid.UUID, data []byte) {
	var msg channelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("Dropping malformed voice event", "session_id", sessionID, "error", err)
		return
	}

	switch msg.Type {
	case "transcription":
		if msg.Text == "" {
			return
		}
		go func() {
			if _, err := m.dispatcher.Handle(context.Background(), sessionID, msg.Text, nil); err != nil {
				m.logger.Error("Voice command failed", "session_id", sessionID, "error", err)
			}
		}()
	case "agent_response":
		if err := m.dispatcher.Broadcast(context.Background(), sessionID, router.Event{Message: msg.Text}); err != nil {
			m.logger.Error("Voice response broadcast failed", "session_id", sessionID, "error", err)
		}
	default:
		m.logger.Debug("Ignoring voice event", "session_id", sessionID, "type", msg.Type)
	}
}

// close transitions a session to Closed and releases every transport
// resource. Idempotent; later calls are no-ops.
func (m *Manager) close(sessionID uuid.UUID, vs *voiceSession, reason string) {
	vs.mu.Lock()
	if vs.state == StateClosed || vs.state == StateIdle || vs.state == StateFailed {
		vs.mu.Unlock()
		return
	}
	m.releaseLocked(vs)
	vs.state = StateClosed
	vs.mu.Unlock()

	m.logger.Info("Voice session closed", "session_id", sessionID, "reason", reason)
	if err := m.dispatcher.Broadcast(context.Background(), sessionID, router.Event{
		Message: "Voice channel closed (" + reason + ").",
	}); err != nil {
		m.logger.Debug("Voice close notice not delivered", "session_id", sessionID, "error", err)
	}
}

// releaseLocked drops transport resources. Caller holds vs.mu. After
// this returns nothing stays acquired: the peer connection is closed
// and handles are nil.
func (m *Manager) releaseLocked(vs *voiceSession) {
	if vs.dc != nil {
		_ = vs.dc.Close()
		vs.dc = nil
	}
	if vs.pc != nil {
		_ = vs.pc.Close()
		vs.pc = nil
	}
	vs.dataChannelOpen = false
	vs.key = nil
}
