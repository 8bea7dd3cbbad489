package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwebster45206/gameweaver/internal/router"
	"github.com/jwebster45206/gameweaver/pkg/battle"
	"github.com/jwebster45206/gameweaver/pkg/chat"
	"github.com/jwebster45206/gameweaver/pkg/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// outboundBuffer bounds the per-client send queue. A client that falls
// further behind than this drops frames instead of stalling the
// session worker.
const outboundBuffer = 32

// VoiceSettings toggles the realtime voice channel from a client frame.
type VoiceSettings struct {
	Enabled bool   `json:"enabled"`
	VoiceID string `json:"voiceId,omitempty"`
}

// QuestRequest defines a new quest delivered over the socket.
type QuestRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Objectives  []string `json:"objectives,omitempty"`
	Rewards     []string `json:"rewards,omitempty"`
}

// MapUpdate carries opaque map blobs. The server stores and re-serves
// them without interpretation.
type MapUpdate struct {
	World     json.RawMessage `json:"world,omitempty"`
	LocalName string          `json:"localName,omitempty"`
	Local     json.RawMessage `json:"local,omitempty"`
}

// wsRequest is one inbound client frame. Exactly one field is expected
// to be set; command text and structured operations share the socket.
type wsRequest struct {
	Command       string               `json:"command,omitempty"`
	VoiceSettings *VoiceSettings       `json:"voiceSettings,omitempty"`
	StartBattle   []battle.Combatant   `json:"startBattle,omitempty"`
	EndBattle     bool                 `json:"endBattle,omitempty"`
	BattleAction  *router.BattleAction `json:"battleAction,omitempty"`
	Join          *session.Player      `json:"join,omitempty"`
	AddQuest      *QuestRequest        `json:"addQuest,omitempty"`
	UpdateMap     *MapUpdate           `json:"updateMap,omitempty"`
}

// wsChannel adapts one websocket connection to router.ClientChannel.
// Frames pass through a buffered queue drained by a single writer
// goroutine, so Send never blocks the session worker.
type wsChannel struct {
	conn   *websocket.Conn
	out    chan interface{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newWSChannel(conn *websocket.Conn, logger *slog.Logger) *wsChannel {
	return &wsChannel{
		conn:   conn,
		out:    make(chan interface{}, outboundBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *wsChannel) Send(ev router.Event) {
	c.enqueue(ev)
}

func (c *wsChannel) SendSnapshot(snap router.Snapshot) {
	c.enqueue(snap)
}

func (c *wsChannel) enqueue(frame interface{}) {
	select {
	case c.out <- frame:
	case <-c.done:
	default:
		c.logger.Warn("Dropping frame for slow websocket client")
	}
}

// writeLoop is the only goroutine that writes to the connection.
func (c *wsChannel) writeLoop() {
	for {
		select {
		case frame := <-c.out:
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug("Websocket write failed", "error", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsChannel) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WSHandler upgrades clients onto a session's fan-out channel and
// feeds their frames into the command router.
type WSHandler struct {
	router *router.Router
	voice  router.VoiceController
	logger *slog.Logger
}

func NewWSHandler(router *router.Router, voice router.VoiceController, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		router: router,
		voice:  voice,
		logger: logger,
	}
}

// ServeHTTP handles GET /v1/ws/{sessionID}.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/ws"), "/")
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid session ID on websocket path", "id", idStr, "error", err)
		http.Error(w, "Invalid session ID format", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	ch := newWSChannel(conn, h.logger)

	// Snapshots queue up until the writer starts, so a failed subscribe
	// can still write its error directly.
	if err := h.router.Subscribe(r.Context(), sessionID, ch); err != nil {
		ev := router.Event{Message: "Could not join session.", IsError: true}
		if errors.Is(err, router.ErrSessionNotFound) {
			ev.Message = "Session not found."
		} else {
			h.logger.Error("Failed to subscribe websocket client", "session_id", sessionID, "error", err)
		}
		_ = conn.WriteJSON(ev)
		_ = conn.Close()
		return
	}
	go ch.writeLoop()
	h.logger.Debug("Websocket client connected", "session_id", sessionID)

	defer func() {
		h.router.Unsubscribe(sessionID, ch)
		ch.close()
		h.logger.Debug("Websocket client disconnected", "session_id", sessionID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Websocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			ch.Send(router.Event{Message: "Invalid JSON frame.", IsError: true})
			continue
		}

		h.dispatch(r, sessionID, ch, req)
	}
}

// dispatch applies one client frame. Successful mutations fan out to
// every subscriber, this socket included, so only direct replies and
// errors are sent back here.
func (h *WSHandler) dispatch(r *http.Request, sessionID uuid.UUID, ch *wsChannel, req wsRequest) {
	ctx := r.Context()

	switch {
	case req.VoiceSettings != nil:
		if h.voice == nil {
			ch.Send(router.Event{Message: "Voice is not available.", IsError: true})
			return
		}
		if req.VoiceSettings.Enabled {
			if err := h.voice.Enable(ctx, sessionID, req.VoiceSettings.VoiceID); err != nil {
				ch.Send(router.Event{Message: "Could not start voice: " + err.Error(), IsError: true})
				return
			}
			ch.Send(router.Event{Message: "Voice channel connected."})
		} else {
			if err := h.voice.Disable(sessionID); err != nil {
				ch.Send(router.Event{Message: "Could not stop voice: " + err.Error(), IsError: true})
				return
			}
			ch.Send(router.Event{Message: "Voice channel closed."})
		}

	case len(req.StartBattle) > 0:
		h.reply(ch, false)(h.router.StartBattle(ctx, sessionID, req.StartBattle))

	case req.EndBattle:
		h.reply(ch, false)(h.router.EndBattle(ctx, sessionID))

	case req.BattleAction != nil:
		h.reply(ch, false)(h.router.HandleBattleAction(ctx, sessionID, *req.BattleAction))

	case req.Join != nil:
		h.reply(ch, false)(h.router.JoinPlayer(ctx, sessionID, req.Join))

	case req.AddQuest != nil:
		q := req.AddQuest
		h.reply(ch, false)(h.router.AddQuest(ctx, sessionID, q.Title, q.Description, q.Objectives, q.Rewards))

	case req.UpdateMap != nil:
		m := req.UpdateMap
		h.reply(ch, true)(h.router.UpdateMap(ctx, sessionID, m.World, m.LocalName, m.Local))

	case strings.TrimSpace(req.Command) != "":
		creq := chat.ChatRequest{SessionID: sessionID, Message: req.Command}
		if err := creq.Validate(); err != nil {
			ch.Send(router.Event{Message: err.Error(), IsError: true})
			return
		}
		cmd := router.ParseCommand(req.Command)
		ev, err := h.router.Handle(ctx, sessionID, req.Command, ch)
		if err != nil {
			ch.Send(router.Event{Message: err.Error(), IsError: true})
			return
		}
		if ev.IsError || !fansOut(cmd.Kind) {
			ch.Send(ev)
		}

	default:
		ch.Send(router.Event{Message: "Empty frame.", IsError: true})
	}
}

// reply returns a sender for structured operations. Successes already
// reached this socket through the fan-out unless alwaysReply is set.
func (h *WSHandler) reply(ch *wsChannel, alwaysReply bool) func(router.Event, error) {
	return func(ev router.Event, err error) {
		if err != nil {
			ch.Send(router.Event{Message: err.Error(), IsError: true})
			return
		}
		if ev.IsError || alwaysReply {
			ch.Send(ev)
		}
	}
}

// fansOut reports whether a successful command of this kind is
// broadcast to subscribers by the router.
func fansOut(kind router.CommandKind) bool {
	switch kind {
	case router.CmdStart, router.CmdRoll, router.CmdFreeform:
		return true
	}
	return false
}
