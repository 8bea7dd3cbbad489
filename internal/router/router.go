// Package router serializes every client command against its session.
// Each live session is owned by exactly one worker goroutine; the
// worker's queue is the mutual-exclusion mechanism, so session state
// needs no locks of its own. Commands for different sessions run
// concurrently.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/internal/retrieval"
	"github.com/jwebster45206/gameweaver/internal/services"
	"github.com/jwebster45206/gameweaver/internal/storage"
	"github.com/jwebster45206/gameweaver/pkg/dice"
	"github.com/jwebster45206/gameweaver/pkg/gamedata"
	"github.com/jwebster45206/gameweaver/pkg/session"
)

// ErrSessionNotFound is returned when a session id matches nothing in
// memory or in storage.
var ErrSessionNotFound = fmt.Errorf("session not found")

const (
	taskQueueSize  = 16
	retrievalTopK  = 4
	historyDisplay = 20

	flushRetryBase = time.Second
	flushRetryMax  = 30 * time.Second
)

// Event is one fan-out message to client channels.
type Event struct {
	Message string `json:"message"`
	IsError bool   `json:"isError"`
}

// SnapshotKind labels out-of-band state pushes.
type SnapshotKind string

const (
	SnapshotPlayers SnapshotKind = "players"
	SnapshotHistory SnapshotKind = "history"
	SnapshotBattle  SnapshotKind = "battle"
	SnapshotQuests  SnapshotKind = "quests"
	SnapshotMap     SnapshotKind = "map"
)

// Snapshot is an out-of-band state push to client channels.
type Snapshot struct {
	Kind SnapshotKind `json:"kind"`
	Data interface{}  `json:"data"`
}

// ClientChannel receives fan-out events and snapshots. Implementations
// must not block; slow consumers drop rather than stall the worker.
type ClientChannel interface {
	Send(ev Event)
	SendSnapshot(snap Snapshot)
}

// AdventureCatalog lists and reads importable adventure text files.
type AdventureCatalog interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) (string, error)
}

// VoiceController toggles the realtime voice channel for a session.
type VoiceController interface {
	Enable(ctx context.Context, sessionID uuid.UUID, voiceID string) error
	Disable(sessionID uuid.UUID) error
}

// Router owns the session registry and dispatches commands.
type Router struct {
	store   storage.Storage
	llm     services.LLMService
	index   *retrieval.Index
	catalog AdventureCatalog
	library *gamedata.Library
	roller  *dice.Roller
	voice   VoiceController
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[uuid.UUID]*sessionWorker
}

// New creates a router. The voice controller is optional and wired
// separately because it depends on the router for transcriptions.
func New(store storage.Storage, llm services.LLMService, index *retrieval.Index, catalog AdventureCatalog, logger *slog.Logger) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		store:   store,
		llm:     llm,
		index:   index,
		catalog: catalog,
		library: gamedata.NewLibrary(),
		roller:  dice.NewRoller(nil),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[uuid.UUID]*sessionWorker),
	}
}

// SetVoiceController wires the voice lifecycle manager.
func (r *Router) SetVoiceController(vc VoiceController) {
	r.voice = vc
}

// SetRoller replaces the dice roller, for deterministic tests.
func (r *Router) SetRoller(roller *dice.Roller) {
	r.roller = roller
}

// CreateSession registers a new empty session and returns a snapshot
// of it.
func (r *Router) CreateSession(ctx context.Context, name string) (*session.Session, error) {
	sess := session.NewSession()
	sess.Name = name

	if err := r.store.SaveSession(ctx, sess.ID, sess); err != nil {
		return nil, fmt.Errorf("failed to persist new session: %w", err)
	}

	w := newSessionWorker(r, sess)
	r.mu.Lock()
	r.workers[sess.ID] = w
	r.mu.Unlock()
	go w.loop()

	r.logger.Info("Session created", "session_id", sess.ID)
	return sess.Clone()
}

// SessionSnapshot returns a consistent copy of the session state.
func (r *Router) SessionSnapshot(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var snap *session.Session
	_, err = w.do(ctx, false, func() Event {
		var cloneErr error
		snap, cloneErr = w.sess.Clone()
		if cloneErr != nil {
			return Event{Message: cloneErr.Error(), IsError: true}
		}
		return Event{}
	})
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("failed to snapshot session")
	}
	return snap, nil
}

// DeleteSession stops the session worker and removes the stored record.
func (r *Router) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	w, ok := r.workers[sessionID]
	if ok {
		delete(r.workers, sessionID)
	}
	r.mu.Unlock()
	if ok {
		w.stop()
	}

	if err := r.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	r.logger.Info("Session deleted", "session_id", sessionID)
	return nil
}

// ListSessions returns the ids of all persisted sessions.
func (r *Router) ListSessions(ctx context.Context) ([]uuid.UUID, error) {
	return r.store.ListSessions(ctx)
}

// Handle parses and executes one raw command for a session, blocking
// until the command's turn in the queue completes. The origin channel
// may be nil for callers that only want the returned Event.
func (r *Router) Handle(ctx context.Context, sessionID uuid.UUID, raw string, origin ClientChannel) (Event, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return Event{}, err
	}

	cmd := ParseCommand(raw)
	return w.do(ctx, isMutating(cmd.Kind), func() Event {
		return w.execute(cmd, origin)
	})
}

// Broadcast fans an event out to every channel subscribed to the
// session without going through command parsing. Used by the voice
// layer for agent responses and connection notices.
func (r *Router) Broadcast(ctx context.Context, sessionID uuid.UUID, ev Event) error {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return err
	}
	w.fanOut(ev)
	return nil
}

// Subscribe attaches a client channel to a session's fan-out and
// pushes the current snapshots so the client can render state.
func (r *Router) Subscribe(ctx context.Context, sessionID uuid.UUID, ch ClientChannel) error {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return err
	}

	w.subscribe(ch)
	_, err = w.do(ctx, false, func() Event {
		w.pushSnapshots(ch)
		return Event{}
	})
	return err
}

// Unsubscribe detaches a client channel. In-flight commands for the
// session are unaffected.
func (r *Router) Unsubscribe(sessionID uuid.UUID, ch ClientChannel) {
	r.mu.Lock()
	w, ok := r.workers[sessionID]
	r.mu.Unlock()
	if ok {
		w.unsubscribe(ch)
	}
}

// Shutdown stops all session workers after a final synchronous flush.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	workers := make([]*sessionWorker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[uuid.UUID]*sessionWorker)
	r.mu.Unlock()

	var firstErr error
	for _, w := range workers {
		_, err := w.do(ctx, false, func() Event {
			if err := r.store.SaveSession(ctx, w.sess.ID, w.sess); err != nil {
				return Event{Message: err.Error(), IsError: true}
			}
			return Event{}
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
		w.stop()
	}

	r.cancel()
	return firstErr
}

// worker returns the live worker for a session, attaching one from
// storage on first use.
func (r *Router) worker(ctx context.Context, sessionID uuid.UUID) (*sessionWorker, error) {
	r.mu.Lock()
	if w, ok := r.workers[sessionID]; ok {
		r.mu.Unlock()
		return w, nil
	}
	r.mu.Unlock()

	sess, err := r.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[sessionID]; ok {
		// Lost the race to another attach
		return w, nil
	}
	w := newSessionWorker(r, sess)
	r.workers[sessionID] = w
	go w.loop()
	r.logger.Info("Session attached", "session_id", sessionID)
	return w, nil
}

func isMutating(kind CommandKind) bool {
	switch kind {
	case CmdStart, CmdSelect, CmdSave, CmdRoll, CmdFreeform:
		return true
	}
	return false
}

// task is one unit of serialized work for a session.
type task struct {
	run      func() Event
	mutating bool
	reply    chan Event
}

// sessionWorker owns one session. All reads and writes of w.sess
// happen on the loop goroutine.
type sessionWorker struct {
	router *Router
	sess   *session.Session
	tasks  chan task
	done   chan struct{}
	once   sync.Once

	subMu sync.Mutex
	subs  map[ClientChannel]struct{}

	flushMu   sync.Mutex
	flushGate chan struct{} // non-nil while a failed flush is retrying
}

func newSessionWorker(r *Router, sess *session.Session) *sessionWorker {
	return &sessionWorker{
		router: r,
		sess:   sess,
		tasks:  make(chan task, taskQueueSize),
		done:   make(chan struct{}),
		subs:   make(map[ClientChannel]struct{}),
	}
}

func (w *sessionWorker) loop() {
	for {
		select {
		case <-w.done:
			return
		case t := <-w.tasks:
			if t.mutating {
				w.waitForFlush()
			}
			t.reply <- t.run()
		}
	}
}

func (w *sessionWorker) stop() {
	w.once.Do(func() { close(w.done) })
}

// do enqueues a task and waits for its result.
func (w *sessionWorker) do(ctx context.Context, mutating bool, run func() Event) (Event, error) {
	t := task{run: run, mutating: mutating, reply: make(chan Event, 1)}

	select {
	case w.tasks <- t:
	case <-w.done:
		return Event{}, fmt.Errorf("session is closed")
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}

	select {
	case ev := <-t.reply:
		return ev, nil
	case <-ctx.Done():
		// The task still runs to completion on the worker; only the
		// caller stops waiting.
		return Event{}, ctx.Err()
	}
}

func (w *sessionWorker) subscribe(ch ClientChannel) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.subs[ch] = struct{}{}
}

func (w *sessionWorker) unsubscribe(ch ClientChannel) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	delete(w.subs, ch)
}

func (w *sessionWorker) fanOut(ev Event) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for ch := range w.subs {
		ch.Send(ev)
	}
}

func (w *sessionWorker) fanOutSnapshot(snap Snapshot) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for ch := range w.subs {
		ch.SendSnapshot(snap)
	}
}

// pushSnapshots sends the full current state to one channel. Must run
// on the worker goroutine.
func (w *sessionWorker) pushSnapshots(ch ClientChannel) {
	ch.SendSnapshot(Snapshot{Kind: SnapshotPlayers, Data: w.sess.ActivePlayers()})
	ch.SendSnapshot(Snapshot{Kind: SnapshotHistory, Data: w.sess.RecentHistory(historyDisplay)})
	if w.sess.InBattle() {
		ch.SendSnapshot(Snapshot{Kind: SnapshotBattle, Data: w.sess.Battle})
	}
	if len(w.sess.Quests) > 0 {
		ch.SendSnapshot(Snapshot{Kind: SnapshotQuests, Data: w.sess.Quests})
	}
	if w.sess.WorldMap != nil || len(w.sess.LocalMaps) > 0 {
		ch.SendSnapshot(Snapshot{Kind: SnapshotMap, Data: mapData(w.sess)})
	}
}

func mapData(s *session.Session) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(s.LocalMaps)+1)
	if s.WorldMap != nil {
		out["world"] = s.WorldMap
	}
	for name, blob := range s.LocalMaps {
		out[name] = blob
	}
	return out
}

// waitForFlush blocks while a failed persistence write is still
// retrying. This is the back-pressure point: the in-memory session
// stays authoritative, but no further mutations are accepted until
// the dirty state reaches storage.
func (w *sessionWorker) waitForFlush() {
	w.flushMu.Lock()
	gate := w.flushGate
	w.flushMu.Unlock()
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-w.done:
	}
}

// flushAsync persists a snapshot of the session without holding the
// queue open. On failure it raises the flush gate and retries with
// backoff until the write lands.
func (w *sessionWorker) flushAsync() {
	snap, err := w.sess.Clone()
	if err != nil {
		w.router.logger.Error("Failed to snapshot session for flush",
			"session_id", w.sess.ID, "error", err)
		return
	}

	go func() {
		ctx := w.router.ctx
		err := w.router.store.SaveSession(ctx, snap.ID, snap)
		if err == nil {
			return
		}
		w.router.logger.Error("Session flush failed, retrying",
			"session_id", snap.ID, "error", err)

		gate := make(chan struct{})
		w.flushMu.Lock()
		w.flushGate = gate
		w.flushMu.Unlock()

		defer func() {
			w.flushMu.Lock()
			if w.flushGate == gate {
				w.flushGate = nil
			}
			w.flushMu.Unlock()
			close(gate)
		}()

		backoff := flushRetryBase
		for {
			select {
			case <-w.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := w.router.store.SaveSession(ctx, snap.ID, snap); err == nil {
				w.router.logger.Info("Session flush recovered", "session_id", snap.ID)
				return
			}
			w.router.logger.Error("Session flush retry failed", "session_id", snap.ID)

			if backoff < flushRetryMax {
				backoff *= 2
			}
		}
	}()
}
