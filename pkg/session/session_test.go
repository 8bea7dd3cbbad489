package session

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/jwebster45206/gameweaver/pkg/battle"
	"github.com/jwebster45206/gameweaver/pkg/dice"
)

type fixedSource struct{ face int }

func (f *fixedSource) Intn(n int) int {
	v := f.face - 1
	if v >= n {
		v = n - 1
	}
	return v
}

func newTestPlayer(name string) *Player {
	return &Player{
		CharacterName: name,
		PlayerName:    "Jess",
		HP:            10,
		MaxHP:         10,
		AC:            12,
		Background:    "Gutter scum turned adventurer",
		Stats:         map[string]int{"strength": 12, "agility": 9},
		Inventory:     []string{"torch", "rope", "torch"},
	}
}

func TestSession_AppendEvent(t *testing.T) {
	s := NewSession()

	s.AppendEvent(EventPlayerCommand, "Grimgut", "I open the door")
	s.AppendEvent(EventNarration, "", "The door creaks open.")
	s.AppendEvent(EventSystem, "", "Game saved.")

	if len(s.History) != 3 {
		t.Fatalf("History length = %d, want 3", len(s.History))
	}
	if s.History[0].Type != EventPlayerCommand || s.History[0].Actor != "Grimgut" {
		t.Errorf("unexpected first event: %+v", s.History[0])
	}

	recent := s.RecentHistory(2)
	if len(recent) != 2 || recent[0].Type != EventNarration {
		t.Errorf("RecentHistory(2) = %+v", recent)
	}
	if got := s.RecentHistory(10); len(got) != 3 {
		t.Errorf("RecentHistory(10) length = %d, want 3", len(got))
	}
}

func TestSession_Players(t *testing.T) {
	s := NewSession()

	if err := s.UpsertPlayer(newTestPlayer("Grimgut")); err != nil {
		t.Fatalf("UpsertPlayer returned error: %v", err)
	}
	if err := s.UpsertPlayer(newTestPlayer("Vexa")); err != nil {
		t.Fatalf("UpsertPlayer returned error: %v", err)
	}
	if len(s.ActivePlayers()) != 2 {
		t.Fatalf("ActivePlayers = %d, want 2", len(s.ActivePlayers()))
	}

	if err := s.DeactivatePlayer("Vexa"); err != nil {
		t.Fatalf("DeactivatePlayer returned error: %v", err)
	}
	if len(s.ActivePlayers()) != 1 {
		t.Errorf("ActivePlayers = %d after deactivation, want 1", len(s.ActivePlayers()))
	}
	// Still present, just inactive.
	if _, ok := s.Players["Vexa"]; !ok {
		t.Error("deactivated player was deleted")
	}

	// Rejoining reactivates.
	if err := s.UpsertPlayer(newTestPlayer("Vexa")); err != nil {
		t.Fatalf("UpsertPlayer returned error: %v", err)
	}
	if s.Players["Vexa"].Inactive {
		t.Error("rejoined player still inactive")
	}

	if err := s.UpsertPlayer(&Player{}); err == nil {
		t.Error("expected error for player without character name")
	}
}

func TestSession_SetPlayerHP(t *testing.T) {
	s := NewSession()
	if err := s.UpsertPlayer(newTestPlayer("Grimgut")); err != nil {
		t.Fatalf("UpsertPlayer returned error: %v", err)
	}

	tests := []struct {
		set  int
		want int
	}{
		{5, 5},
		{-3, 0},
		{99, 10},
	}
	for _, tt := range tests {
		if err := s.SetPlayerHP("Grimgut", tt.set); err != nil {
			t.Fatalf("SetPlayerHP(%d) returned error: %v", tt.set, err)
		}
		if got := s.Players["Grimgut"].HP; got != tt.want {
			t.Errorf("HP after SetPlayerHP(%d) = %d, want %d", tt.set, got, tt.want)
		}
	}

	if err := s.SetPlayerHP("Nobody", 5); err == nil {
		t.Error("expected error for unknown player")
	}
}

func TestSession_Quests(t *testing.T) {
	s := NewSession()

	q, err := s.AddQuest("Find the Lantern", "X", []string{"find it"}, nil)
	if err != nil {
		t.Fatalf("AddQuest returned error: %v", err)
	}
	if q.Status != QuestStatusActive {
		t.Errorf("Status = %s, want active", q.Status)
	}

	active := s.QuestsByStatus(QuestStatusActive)
	if len(active) != 1 || active[0].Title != "Find the Lantern" {
		t.Errorf("active quests = %+v", active)
	}
	if done := s.QuestsByStatus(QuestStatusCompleted); len(done) != 0 {
		t.Errorf("completed quests = %+v, want none", done)
	}

	// All objectives done does not close the quest.
	if err := s.CompleteObjective(q.ID, 0); err != nil {
		t.Fatalf("CompleteObjective returned error: %v", err)
	}
	if q.Status != QuestStatusActive {
		t.Error("quest auto-completed from objectives")
	}

	if err := s.CompleteQuest(q.ID); err != nil {
		t.Fatalf("CompleteQuest returned error: %v", err)
	}
	if len(s.QuestsByStatus(QuestStatusActive)) != 0 {
		t.Error("completed quest still listed as active")
	}
	if len(s.QuestsByStatus(QuestStatusCompleted)) != 1 {
		t.Error("completed quest not listed as completed")
	}

	if _, err := s.AddQuest("", "desc", []string{"x"}, nil); err == nil {
		t.Error("expected error for quest without title")
	}
	if err := s.CompleteObjective(q.ID, 7); err == nil {
		t.Error("expected error for objective index out of range")
	}
}

func TestSession_Battle(t *testing.T) {
	s := NewSession()
	roller := dice.NewRoller(&fixedSource{face: 10})

	entrants := []battle.Combatant{
		{Name: "Grimgut", Side: battle.SidePlayer, HP: 10, MaxHP: 10, InitMod: 2},
		{Name: "Skeleton Warrior", Side: battle.SideEnemy, HP: 20, MaxHP: 20},
	}
	if _, err := s.StartBattle(roller, entrants); err != nil {
		t.Fatalf("StartBattle returned error: %v", err)
	}
	if !s.InBattle() {
		t.Fatal("InBattle = false after StartBattle")
	}

	s.EndBattle()
	if s.InBattle() {
		t.Error("InBattle = true after EndBattle")
	}
	if s.Battle != nil {
		t.Error("Battle not cleared")
	}
}

func TestSession_RoundTrip(t *testing.T) {
	s := NewSession()
	if err := s.UpsertPlayer(newTestPlayer("Grimgut")); err != nil {
		t.Fatalf("UpsertPlayer returned error: %v", err)
	}
	s.CurrentLocation = "The Sunken Crypt"
	s.AppendEvent(EventPlayerCommand, "Grimgut", "I search the altar")
	if _, err := s.AddQuest("Find the Lantern", "A lantern is lost", []string{"find it"}, []string{"20 silver"}); err != nil {
		t.Fatalf("AddQuest returned error: %v", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}

	var loaded Session
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if err := loaded.Rebuild(); err != nil {
		t.Fatalf("Rebuild returned error: %v", err)
	}

	if loaded.ID != s.ID {
		t.Errorf("ID = %s, want %s", loaded.ID, s.ID)
	}
	if loaded.CurrentLocation != s.CurrentLocation {
		t.Errorf("CurrentLocation = %s, want %s", loaded.CurrentLocation, s.CurrentLocation)
	}
	if len(loaded.History) != len(s.History) {
		t.Errorf("History length = %d, want %d", len(loaded.History), len(s.History))
	}
	p, ok := loaded.Players["Grimgut"]
	if !ok {
		t.Fatal("player missing after round trip")
	}
	if p.Actor() == nil {
		t.Error("player actor not rebuilt")
	}
	if len(p.Inventory) != 3 || p.Inventory[0] != "torch" {
		t.Errorf("Inventory = %v", p.Inventory)
	}
	if len(loaded.Quests) != 1 {
		t.Errorf("Quests length = %d, want 1", len(loaded.Quests))
	}
}

func TestSession_Summary(t *testing.T) {
	s := NewSession()
	sum := s.Summary()
	if sum == "" {
		t.Fatal("Summary returned empty string")
	}

	if err := s.UpsertPlayer(newTestPlayer("Grimgut")); err != nil {
		t.Fatalf("UpsertPlayer returned error: %v", err)
	}
	s.CurrentLocation = "Tveland"
	s.AdventureFile = "rotblack_sludge.txt"
	sum = s.Summary()
	for _, want := range []string{"Grimgut", "Tveland", "rotblack_sludge.txt"} {
		if !strings.Contains(sum, want) {
			t.Errorf("Summary = %q, expected to contain %q", sum, want)
		}
	}
}
