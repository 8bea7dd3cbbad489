// Package session holds the canonical mutable state of one campaign.
// A Session is owned by exactly one command queue at a time; the queue
// is the mutual-exclusion mechanism, so no locking happens here.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/pkg/battle"
	"github.com/jwebster45206/gameweaver/pkg/dice"
)

// EventType classifies entries in the session history.
type EventType string

const (
	EventPlayerCommand EventType = "player_command"
	EventNarration     EventType = "gm_narration"
	EventSystem        EventType = "system"
)

// Event is one entry in the append-only session history.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Actor     string    `json:"actor,omitempty"` // character name, empty for system/GM
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the current state of one campaign.
type Session struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name,omitempty"`
	History         []Event            `json:"history,omitempty"`
	Players         map[string]*Player `json:"players,omitempty"` // keyed by character name
	Quests          map[string]*Quest  `json:"quests,omitempty"`
	CurrentLocation string             `json:"current_location,omitempty"`
	Battle          *battle.State      `json:"battle,omitempty"`

	// Map blobs are owned by external rendering and passed through
	// untouched.
	WorldMap  json.RawMessage            `json:"world_map,omitempty"`
	LocalMaps map[string]json.RawMessage `json:"local_maps,omitempty"`

	// AdventureFile is the identity of the currently ingested
	// adventure text, if any.
	AdventureFile string `json:"adventure_file,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session with a fresh ID.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New(),
		History:   make([]Event, 0),
		Players:   make(map[string]*Player),
		Quests:    make(map[string]*Quest),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendEvent adds an entry to the history. History is append-only;
// entries are never removed or rewritten.
func (s *Session) AppendEvent(kind EventType, actor, text string) Event {
	ev := Event{
		ID:        uuid.New().String(),
		Type:      kind,
		Actor:     actor,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	s.History = append(s.History, ev)
	s.UpdatedAt = ev.Timestamp
	return ev
}

// RecentHistory returns up to n most recent events, oldest first.
func (s *Session) RecentHistory(n int) []Event {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// UpsertPlayer adds a player or updates an existing one by character
// name. Rejoining reactivates a player marked inactive.
func (s *Session) UpsertPlayer(p *Player) error {
	if p.CharacterName == "" {
		return fmt.Errorf("player requires a character name")
	}
	if err := p.buildActor(); err != nil {
		return err
	}
	p.Inactive = false
	if s.Players == nil {
		s.Players = make(map[string]*Player)
	}
	s.Players[p.CharacterName] = p
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// DeactivatePlayer marks a player inactive. Players are never deleted;
// removing the record would orphan history entries that reference them.
func (s *Session) DeactivatePlayer(characterName string) error {
	p, ok := s.Players[characterName]
	if !ok {
		return fmt.Errorf("no player with character name %q", characterName)
	}
	p.Inactive = true
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ActivePlayers returns players not marked inactive, for display.
func (s *Session) ActivePlayers() []*Player {
	out := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.Inactive {
			out = append(out, p)
		}
	}
	return out
}

// SetPlayerHP edits a player's current HP, clamped to [0, MaxHP].
func (s *Session) SetPlayerHP(characterName string, hp int) error {
	p, ok := s.Players[characterName]
	if !ok {
		return fmt.Errorf("no player with character name %q", characterName)
	}
	p.SetHP(hp)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// StartBattle rolls initiative and attaches a new battle state.
func (s *Session) StartBattle(roller *dice.Roller, entrants []battle.Combatant) (*battle.State, error) {
	state, err := battle.RollInitiative(roller, entrants)
	if err != nil {
		return nil, err
	}
	s.Battle = state
	s.UpdatedAt = time.Now().UTC()
	return state, nil
}

// EndBattle clears the battle state. What happened remains in the
// history as narrative text, not as structured battle state.
func (s *Session) EndBattle() {
	s.Battle = nil
	s.UpdatedAt = time.Now().UTC()
}

// InBattle reports whether a battle is in progress.
func (s *Session) InBattle() bool {
	return s.Battle != nil
}

// Rebuild reconstructs runtime-only player state after the session is
// loaded from storage.
func (s *Session) Rebuild() error {
	for name, p := range s.Players {
		if err := p.buildActor(); err != nil {
			return fmt.Errorf("rebuilding player %s: %w", name, err)
		}
	}
	return nil
}

// Clone returns a deep copy, detached from the original. Used to hand
// a consistent snapshot to background persistence while the original
// keeps mutating.
func (s *Session) Clone() (*Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("cloning session: %w", err)
	}
	var c Session
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cloning session: %w", err)
	}
	if err := c.Rebuild(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Summary renders a short plain-text description of the session for
// the narration context window.
func (s *Session) Summary() string {
	names := make([]string, 0, len(s.Players))
	for _, p := range s.ActivePlayers() {
		names = append(names, p.CharacterName)
	}
	summary := fmt.Sprintf("Adventure: %s. Location: %s. Players: %s.",
		orNone(s.AdventureFile), orNone(s.CurrentLocation), joinOrNone(names))
	if s.InBattle() {
		summary += fmt.Sprintf(" In battle, %d combatants, %s acting.",
			len(s.Battle.Combatants), s.Battle.Active().Name)
	}
	active := 0
	for _, q := range s.Quests {
		if q.Status == QuestStatusActive {
			active++
		}
	}
	if active > 0 {
		summary += fmt.Sprintf(" Active quests: %d.", active)
	}
	return summary
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func joinOrNone(parts []string) string {
	if len(parts) == 0 {
		return "none"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
