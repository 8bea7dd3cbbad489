package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwebster45206/gameweaver/internal/router"
	"github.com/jwebster45206/gameweaver/pkg/chat"
)

type recordingVoice struct {
	mu       sync.Mutex
	enabled  []string
	disabled int
}

func (v *recordingVoice) Enable(ctx context.Context, sessionID uuid.UUID, voiceID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enabled = append(v.enabled, voiceID)
	return nil
}

func (v *recordingVoice) Disable(sessionID uuid.UUID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disabled++
	return nil
}

// wsFrame is the union of outbound frame shapes.
type wsFrame struct {
	Message string          `json:"message"`
	IsError bool            `json:"isError"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

func dialSession(t *testing.T, serverURL string, sessionID uuid.UUID) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/v1/ws/" + sessionID.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Failed to decode frame %s: %v", data, err)
	}
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
}

func newWSTestServer(t *testing.T, voice router.VoiceController) (*httptest.Server, *router.Router, uuid.UUID) {
	t.Helper()
	rt, _, _ := newTestRouter(t)
	sess, err := rt.CreateSession(context.Background(), "table")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/ws/", NewWSHandler(rt, voice, testLogger()))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, rt, sess.ID
}

func TestWSHandler_SubscribeSnapshots(t *testing.T) {
	server, _, sessionID := newWSTestServer(t, nil)
	conn := dialSession(t, server.URL, sessionID)

	// Connecting pushes the current state before any command runs.
	first := readFrame(t, conn)
	if first.Kind != string(router.SnapshotPlayers) {
		t.Fatalf("Expected players snapshot first, got %+v", first)
	}
	second := readFrame(t, conn)
	if second.Kind != string(router.SnapshotHistory) {
		t.Fatalf("Expected history snapshot second, got %+v", second)
	}
}

func TestWSHandler_CommandRoundTrip(t *testing.T) {
	server, _, sessionID := newWSTestServer(t, nil)
	conn := dialSession(t, server.URL, sessionID)
	readFrame(t, conn) // players snapshot
	readFrame(t, conn) // history snapshot

	// Direct reply for a query command.
	sendFrame(t, conn, map[string]string{"command": "help"})
	frame := readFrame(t, conn)
	if !strings.Contains(frame.Message, "Available commands") {
		t.Fatalf("Expected help text, got %+v", frame)
	}

	// Freeform narration arrives once, through the fan-out.
	sendFrame(t, conn, map[string]string{"command": "I open the vault door"})
	frame = readFrame(t, conn)
	if frame.Message != "Mock narration" {
		t.Fatalf("Expected narration frame, got %+v", frame)
	}

	// The next frame must be the help reply, not a duplicate narration.
	sendFrame(t, conn, map[string]string{"command": "help"})
	frame = readFrame(t, conn)
	if !strings.Contains(frame.Message, "Available commands") {
		t.Fatalf("Expected help text after narration, got %+v", frame)
	}
}

func TestWSHandler_JoinPlayer(t *testing.T) {
	server, _, sessionID := newWSTestServer(t, nil)
	conn := dialSession(t, server.URL, sessionID)
	readFrame(t, conn)
	readFrame(t, conn)

	sendFrame(t, conn, map[string]interface{}{
		"join": map[string]interface{}{
			"character_name": "Grix",
			"player_name":    "Dana",
			"hp":             12,
			"max_hp":         12,
			"ac":             14,
		},
	})

	snap := readFrame(t, conn)
	if snap.Kind != string(router.SnapshotPlayers) {
		t.Fatalf("Expected players snapshot, got %+v", snap)
	}
	ev := readFrame(t, conn)
	if !strings.Contains(ev.Message, "Grix has joined the party") {
		t.Fatalf("Expected join announcement, got %+v", ev)
	}
}

func TestWSHandler_VoiceSettings(t *testing.T) {
	voiceCtl := &recordingVoice{}
	server, _, sessionID := newWSTestServer(t, voiceCtl)
	conn := dialSession(t, server.URL, sessionID)
	readFrame(t, conn)
	readFrame(t, conn)

	sendFrame(t, conn, map[string]interface{}{
		"voiceSettings": map[string]interface{}{"enabled": true, "voiceId": "verse"},
	})
	frame := readFrame(t, conn)
	if !strings.Contains(frame.Message, "Voice channel connected") {
		t.Fatalf("Expected voice connect notice, got %+v", frame)
	}

	sendFrame(t, conn, map[string]interface{}{
		"voiceSettings": map[string]interface{}{"enabled": false},
	})
	frame = readFrame(t, conn)
	if !strings.Contains(frame.Message, "Voice channel closed") {
		t.Fatalf("Expected voice close notice, got %+v", frame)
	}

	voiceCtl.mu.Lock()
	defer voiceCtl.mu.Unlock()
	if len(voiceCtl.enabled) != 1 || voiceCtl.enabled[0] != "verse" {
		t.Errorf("Expected one enable call with voice verse, got %v", voiceCtl.enabled)
	}
	if voiceCtl.disabled != 1 {
		t.Errorf("Expected one disable call, got %d", voiceCtl.disabled)
	}
}

func TestWSHandler_BadFrames(t *testing.T) {
	server, _, sessionID := newWSTestServer(t, nil)
	conn := dialSession(t, server.URL, sessionID)
	readFrame(t, conn)
	readFrame(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	frame := readFrame(t, conn)
	if !frame.IsError || !strings.Contains(frame.Message, "Invalid JSON") {
		t.Fatalf("Expected invalid JSON error, got %+v", frame)
	}

	sendFrame(t, conn, map[string]string{})
	frame = readFrame(t, conn)
	if !frame.IsError || !strings.Contains(frame.Message, "Empty frame") {
		t.Fatalf("Expected empty frame error, got %+v", frame)
	}

	sendFrame(t, conn, map[string]string{"command": strings.Repeat("a", chat.MaxMessageLength+1)})
	frame = readFrame(t, conn)
	if !frame.IsError || !strings.Contains(frame.Message, "exceeds maximum length") {
		t.Fatalf("Expected message length error, got %+v", frame)
	}
}

func TestWSHandler_InvalidSessionPath(t *testing.T) {
	server, _, _ := newWSTestServer(t, nil)

	resp, err := http.Get(server.URL + "/v1/ws/not-a-uuid")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestWSHandler_UnknownSession(t *testing.T) {
	server, _, _ := newWSTestServer(t, nil)
	conn := dialSession(t, server.URL, uuid.New())

	frame := readFrame(t, conn)
	if !frame.IsError || !strings.Contains(frame.Message, "Session not found") {
		t.Fatalf("Expected session not found error, got %+v", frame)
	}
}
