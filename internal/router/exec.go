package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/gameweaver/internal/retrieval"
	"github.com/jwebster45206/gameweaver/pkg/battle"
	"github.com/jwebster45206/gameweaver/pkg/prompts"
	"github.com/jwebster45206/gameweaver/pkg/session"
)

const startInstruction = "Begin the adventure. Set the opening scene for the players and invite them to act."

// execute runs one parsed command. Must run on the worker goroutine.
func (w *sessionWorker) execute(cmd Command, origin ClientChannel) Event {
	switch cmd.Kind {
	case CmdHelp:
		return Event{Message: HelpText()}

	case CmdStart:
		return w.narrate("", startInstruction, false)

	case CmdPlayers:
		if origin != nil {
			origin.SendSnapshot(Snapshot{Kind: SnapshotPlayers, Data: w.sess.ActivePlayers()})
		}
		return Event{Message: w.playerList()}

	case CmdGames:
		return w.listGames()

	case CmdSelect:
		return w.selectGame(cmd.Arg)

	case CmdVoiceOn:
		if w.router.voice == nil {
			return Event{Message: "Voice is not available.", IsError: true}
		}
		if err := w.router.voice.Enable(w.router.ctx, w.sess.ID, ""); err != nil {
			return Event{Message: fmt.Sprintf("Could not start voice: %v", err), IsError: true}
		}
		return Event{Message: "Voice channel connected."}

	case CmdVoiceOff:
		if w.router.voice == nil {
			return Event{Message: "Voice is not available.", IsError: true}
		}
		if err := w.router.voice.Disable(w.sess.ID); err != nil {
			return Event{Message: fmt.Sprintf("Could not stop voice: %v", err), IsError: true}
		}
		return Event{Message: "Voice channel closed."}

	case CmdSave:
		w.waitForFlush()
		if err := w.router.store.SaveSession(w.router.ctx, w.sess.ID, w.sess); err != nil {
			return Event{Message: fmt.Sprintf("Save failed: %v", err), IsError: true}
		}
		return Event{Message: "Game saved."}

	case CmdHistory:
		return Event{Message: w.historyText()}

	case CmdRoll:
		return w.roll(cmd.Arg)

	case CmdLookupMonster:
		if m, ok := w.router.library.LookupMonster(cmd.Arg); ok {
			return Event{Message: m.Format()}
		}
		return Event{Message: fmt.Sprintf("No monster named %q in the bestiary.", cmd.Arg), IsError: true}

	case CmdLookupItem:
		if item, ok := w.router.library.LookupItem(cmd.Arg); ok {
			return Event{Message: item.Format()}
		}
		return Event{Message: fmt.Sprintf("No item named %q in the catalog.", cmd.Arg), IsError: true}

	default:
		return w.narrate(cmd.Arg, cmd.Arg, true)
	}
}

// narrate runs the freeform path: retrieval context, prompt assembly,
// LLM call, history append, fan-out. On narration failure nothing is
// appended to history.
func (w *sessionWorker) narrate(playerText, userMessage string, recordInput bool) Event {
	ctx := w.router.ctx

	var excerpts []string
	var chunks []retrieval.Chunk
	var err error
	if w.router.index != nil {
		chunks, err = w.router.index.Query(ctx, userMessage, retrievalTopK)
	}
	if err != nil {
		if errors.Is(err, retrieval.ErrUnavailable) {
			w.router.logger.Warn("Retrieval unavailable, narrating from history only",
				"session_id", w.sess.ID, "error", err)
		} else {
			w.router.logger.Error("Retrieval query failed, narrating from history only",
				"session_id", w.sess.ID, "error", err)
		}
	} else {
		for _, c := range chunks {
			excerpts = append(excerpts, c.Text)
		}
	}

	messages, err := prompts.New().
		WithSession(w.sess).
		WithChunks(excerpts).
		WithUserMessage(userMessage).
		Build()
	if err != nil {
		return Event{Message: fmt.Sprintf("Could not build narration context: %v", err), IsError: true}
	}

	resp, err := w.router.llm.GenerateResponse(ctx, messages)
	if err != nil {
		w.router.logger.Error("Narration failed", "session_id", w.sess.ID, "error", err)
		return Event{Message: "The Game Master could not answer. Try again.", IsError: true}
	}

	if recordInput {
		w.sess.AppendEvent(session.EventPlayerCommand, "", playerText)
	}
	w.sess.AppendEvent(session.EventNarration, "", resp.Message)
	w.flushAsync()

	ev := Event{Message: resp.Message}
	w.fanOut(ev)
	return ev
}

func (w *sessionWorker) roll(expr string) Event {
	result, err := w.router.roller.Roll(expr)
	if err != nil {
		return Event{Message: err.Error(), IsError: true}
	}

	text := result.String()
	w.sess.AppendEvent(session.EventSystem, "", text)
	w.flushAsync()

	ev := Event{Message: text}
	w.fanOut(ev)
	return ev
}

func (w *sessionWorker) playerList() string {
	players := w.sess.ActivePlayers()
	if len(players) == 0 {
		return "No players have joined yet."
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].CharacterName < players[j].CharacterName
	})

	var sb strings.Builder
	sb.WriteString("Players:\n")
	for _, p := range players {
		fmt.Fprintf(&sb, "  %s (%s) HP %d/%d AC %d\n",
			p.CharacterName, p.PlayerName, p.HP, p.MaxHP, p.AC)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (w *sessionWorker) historyText() string {
	events := w.sess.RecentHistory(historyDisplay)
	if len(events) == 0 {
		return "Nothing has happened yet."
	}

	var sb strings.Builder
	for _, ev := range events {
		switch ev.Type {
		case session.EventPlayerCommand:
			actor := ev.Actor
			if actor == "" {
				actor = "Player"
			}
			fmt.Fprintf(&sb, "%s: %s\n", actor, ev.Text)
		case session.EventNarration:
			fmt.Fprintf(&sb, "GM: %s\n", ev.Text)
		default:
			fmt.Fprintf(&sb, "[system] %s\n", ev.Text)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (w *sessionWorker) listGames() Event {
	if w.router.catalog == nil {
		return Event{Message: "No adventure files are configured.", IsError: true}
	}
	files, err := w.router.catalog.List(w.router.ctx)
	if err != nil {
		return Event{Message: fmt.Sprintf("Could not list adventures: %v", err), IsError: true}
	}
	if len(files) == 0 {
		return Event{Message: "No adventure files found."}
	}

	var sb strings.Builder
	sb.WriteString("Available adventures:\n")
	for i, name := range files {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, name)
	}
	sb.WriteString("Use 'select <n>' to load one.")
	return Event{Message: sb.String()}
}

func (w *sessionWorker) selectGame(arg string) Event {
	if w.router.index == nil {
		return Event{Message: "Adventure indexing is not available.", IsError: true}
	}
	if w.router.catalog == nil {
		return Event{Message: "No adventure files are configured.", IsError: true}
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return Event{Message: fmt.Sprintf("%q is not an adventure number.", arg), IsError: true}
	}

	ctx := w.router.ctx
	files, err := w.router.catalog.List(ctx)
	if err != nil {
		return Event{Message: fmt.Sprintf("Could not list adventures: %v", err), IsError: true}
	}
	if n < 1 || n > len(files) {
		return Event{Message: fmt.Sprintf("Adventure number %d is out of range (1-%d).", n, len(files)), IsError: true}
	}

	name := files[n-1]
	text, err := w.router.catalog.Read(ctx, name)
	if err != nil {
		return Event{Message: fmt.Sprintf("Could not read %s: %v", name, err), IsError: true}
	}

	count, err := w.router.index.Ingest(ctx, name, text)
	if err != nil {
		return Event{Message: fmt.Sprintf("Could not index %s: %v", name, err), IsError: true}
	}

	w.sess.AdventureFile = name
	w.sess.AppendEvent(session.EventSystem, "", fmt.Sprintf("Adventure %s loaded.", name))
	w.flushAsync()

	return Event{Message: fmt.Sprintf("Loaded %s (%d sections indexed). Type 'start' to begin.", name, count)}
}

// BattleActionKind labels structured battle edits from clients.
type BattleActionKind string

const (
	BattleUpdateHP BattleActionKind = "update_hp"
	BattleTarget   BattleActionKind = "target"
	BattleNextTurn BattleActionKind = "next_turn"
)

// BattleAction is a structured battle edit delivered over a client
// channel rather than as narrative text.
type BattleAction struct {
	Kind     BattleActionKind `json:"kind"`
	Name     string           `json:"name,omitempty"`
	HP       int              `json:"hp,omitempty"`
	Attacker string           `json:"attacker,omitempty"`
	Target   string           `json:"target,omitempty"`
}

// StartBattle rolls initiative and opens a battle for the session.
func (r *Router) StartBattle(ctx context.Context, sessionID uuid.UUID, entrants []battle.Combatant) (Event, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return Event{}, err
	}

	return w.do(ctx, true, func() Event {
		state, err := w.sess.StartBattle(r.roller, entrants)
		if err != nil {
			return Event{Message: err.Error(), IsError: true}
		}
		w.flushAsync()
		w.fanOutSnapshot(Snapshot{Kind: SnapshotBattle, Data: state})

		var sb strings.Builder
		sb.WriteString("Battle begins! Initiative order:\n")
		for i, c := range state.Combatants {
			fmt.Fprintf(&sb, "  %d. %s (%d)\n", i+1, c.Name, c.Initiative)
		}
		fmt.Fprintf(&sb, "%s acts first.", state.Active().Name)
		ev := Event{Message: sb.String()}
		w.fanOut(ev)
		return ev
	})
}

// EndBattle clears the session's battle state.
func (r *Router) EndBattle(ctx context.Context, sessionID uuid.UUID) (Event, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return Event{}, err
	}

	return w.do(ctx, true, func() Event {
		if !w.sess.InBattle() {
			return Event{Message: "No battle is in progress.", IsError: true}
		}
		w.sess.EndBattle()
		w.flushAsync()
		w.fanOutSnapshot(Snapshot{Kind: SnapshotBattle, Data: nil})

		ev := Event{Message: "The battle is over."}
		w.fanOut(ev)
		return ev
	})
}

// HandleBattleAction applies one structured battle edit. Unknown
// combatant names are rejected with no state change.
func (r *Router) HandleBattleAction(ctx context.Context, sessionID uuid.UUID, action BattleAction) (Event, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return Event{}, err
	}

	return w.do(ctx, true, func() Event {
		if !w.sess.InBattle() {
			return Event{Message: "No battle is in progress.", IsError: true}
		}
		state := w.sess.Battle

		var msg string
		switch action.Kind {
		case BattleUpdateHP:
			if err := state.SetHP(action.Name, action.HP); err != nil {
				return Event{Message: err.Error(), IsError: true}
			}
			msg = fmt.Sprintf("%s is at %d HP.", action.Name, action.HP)
		case BattleTarget:
			if err := state.SetTarget(action.Attacker, action.Target); err != nil {
				return Event{Message: err.Error(), IsError: true}
			}
			msg = fmt.Sprintf("%s targets %s.", action.Attacker, action.Target)
		case BattleNextTurn:
			next, err := state.AdvanceTurn()
			if err != nil {
				return Event{Message: err.Error(), IsError: true}
			}
			msg = fmt.Sprintf("It is %s's turn.", next.Name)
		default:
			return Event{Message: fmt.Sprintf("Unknown battle action %q.", action.Kind), IsError: true}
		}

		w.flushAsync()
		w.fanOutSnapshot(Snapshot{Kind: SnapshotBattle, Data: state})
		ev := Event{Message: msg}
		w.fanOut(ev)
		return ev
	})
}

// JoinPlayer adds or reactivates a player in the session.
func (r *Router) JoinPlayer(ctx context.Context, sessionID uuid.UUID, p *session.Player) (Event, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return Event{}, err
	}

	return w.do(ctx, true, func() Event {
		if err := w.sess.UpsertPlayer(p); err != nil {
			return Event{Message: err.Error(), IsError: true}
		}
		w.sess.AppendEvent(session.EventSystem, "", fmt.Sprintf("%s joins the party.", p.CharacterName))
		w.flushAsync()
		w.fanOutSnapshot(Snapshot{Kind: SnapshotPlayers, Data: w.sess.ActivePlayers()})

		ev := Event{Message: fmt.Sprintf("%s has joined the party.", p.CharacterName)}
		w.fanOut(ev)
		return ev
	})
}

// AddQuest records a new quest and pushes the quest list.
func (r *Router) AddQuest(ctx context.Context, sessionID uuid.UUID, title, description string, objectives, rewards []string) (Event, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return Event{}, err
	}

	return w.do(ctx, true, func() Event {
		quest, err := w.sess.AddQuest(title, description, objectives, rewards)
		if err != nil {
			return Event{Message: err.Error(), IsError: true}
		}
		w.flushAsync()
		w.fanOutSnapshot(Snapshot{Kind: SnapshotQuests, Data: w.sess.Quests})

		ev := Event{Message: fmt.Sprintf("New quest: %s", quest.Title)}
		w.fanOut(ev)
		return ev
	})
}

// UpdateMap stores opaque map blobs and pushes the map snapshot. The
// router never interprets map contents.
func (r *Router) UpdateMap(ctx context.Context, sessionID uuid.UUID, world json.RawMessage, localName string, local json.RawMessage) (Event, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return Event{}, err
	}

	return w.do(ctx, true, func() Event {
		if world != nil {
			w.sess.WorldMap = world
		}
		if localName != "" && local != nil {
			if w.sess.LocalMaps == nil {
				w.sess.LocalMaps = make(map[string]json.RawMessage)
			}
			w.sess.LocalMaps[localName] = local
		}
		w.flushAsync()
		w.fanOutSnapshot(Snapshot{Kind: SnapshotMap, Data: mapData(w.sess)})
		return Event{Message: "Map updated."}
	})
}
