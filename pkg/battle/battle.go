// Package battle tracks initiative order and turn state during combat.
// It is advisory bookkeeping for the game master, not a rules engine.
package battle

import (
	"fmt"
	"sort"

	"github.com/jwebster45206/gameweaver/pkg/dice"
)

// Side identifies which side of the battle a combatant fights on.
type Side string

const (
	SidePlayer Side = "player"
	SideEnemy  Side = "enemy"
)

// UnknownCombatantError indicates a battle action referencing a name
// not present in the combatant list. State is never changed on this error.
type UnknownCombatantError struct {
	Name string
}

func (e *UnknownCombatantError) Error() string {
	return fmt.Sprintf("unknown combatant: %q", e.Name)
}

// ErrNoActiveCombatants is returned by AdvanceTurn when every combatant
// is at 0 HP or below.
var ErrNoActiveCombatants = fmt.Errorf("no combatant able to act")

// Combatant is one participant in the initiative order.
type Combatant struct {
	Name       string `json:"name"`
	Side       Side   `json:"side"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"max_hp"`
	AC         int    `json:"ac"`
	Initiative int    `json:"initiative"`

	// InitMod is added to the d20 roll when initiative is rolled.
	InitMod int `json:"init_mod,omitempty"`
}

// State is the battle sub-state owned by a session. The combatant
// slice is a fixed ring once initiative is rolled: it is never
// re-sorted mid-battle, even if initiative values are edited.
type State struct {
	Combatants  []Combatant       `json:"combatants"`
	ActiveIndex int               `json:"active_index"`
	Targets     map[string]string `json:"targets,omitempty"` // attacker name -> target name
}

// RollInitiative rolls d20+InitMod for each entrant and returns a new
// battle with combatants ordered by initiative, highest first. Ties
// keep the entrants' original order (stable sort).
func RollInitiative(roller *dice.Roller, entrants []Combatant) (*State, error) {
	if len(entrants) == 0 {
		return nil, fmt.Errorf("cannot start a battle with no combatants")
	}

	combatants := make([]Combatant, len(entrants))
	copy(combatants, entrants)
	for i := range combatants {
		result, err := roller.Roll("d20")
		if err != nil {
			return nil, fmt.Errorf("rolling initiative for %s: %w", combatants[i].Name, err)
		}
		combatants[i].Initiative = result.Total + combatants[i].InitMod
		if combatants[i].HP == 0 && combatants[i].MaxHP > 0 {
			combatants[i].HP = combatants[i].MaxHP
		}
	}

	sort.SliceStable(combatants, func(a, b int) bool {
		return combatants[a].Initiative > combatants[b].Initiative
	})

	return &State{
		Combatants:  combatants,
		ActiveIndex: 0,
		Targets:     make(map[string]string),
	}, nil
}

// Active returns the combatant whose turn it is.
func (s *State) Active() *Combatant {
	return &s.Combatants[s.ActiveIndex]
}

// find returns the index of the named combatant, or -1.
func (s *State) find(name string) int {
	for i := range s.Combatants {
		if s.Combatants[i].Name == name {
			return i
		}
	}
	return -1
}

// AdvanceTurn moves the active index to the next combatant in the
// ring, skipping anyone at 0 HP or below. Downed combatants stay
// listed but are never selected as active.
func (s *State) AdvanceTurn() (*Combatant, error) {
	n := len(s.Combatants)
	for step := 1; step <= n; step++ {
		idx := (s.ActiveIndex + step) % n
		if s.Combatants[idx].HP > 0 {
			s.ActiveIndex = idx
			return &s.Combatants[idx], nil
		}
	}
	return nil, ErrNoActiveCombatants
}

// SetTarget records that attacker is aiming at target. Both names must
// reference existing combatants.
func (s *State) SetTarget(attacker, target string) error {
	if s.find(attacker) < 0 {
		return &UnknownCombatantError{Name: attacker}
	}
	if s.find(target) < 0 {
		return &UnknownCombatantError{Name: target}
	}
	if s.Targets == nil {
		s.Targets = make(map[string]string)
	}
	s.Targets[attacker] = target
	return nil
}

// SetHP edits a combatant's HP directly, clamped to [0, MaxHP]. Setting
// the active combatant to 0 does not advance the turn; advancing is
// always an explicit action.
func (s *State) SetHP(name string, hp int) error {
	idx := s.find(name)
	if idx < 0 {
		return &UnknownCombatantError{Name: name}
	}
	c := &s.Combatants[idx]
	if hp < 0 {
		hp = 0
	}
	if c.MaxHP > 0 && hp > c.MaxHP {
		hp = c.MaxHP
	}
	c.HP = hp
	return nil
}
