package session

import (
	"fmt"

	"github.com/jwebster45206/d20"
)

// Player is one character in a session. Created on first join or
// import, mutated by narration effects and explicit HP edits, never
// deleted (removed players are marked Inactive to keep history intact).
type Player struct {
	CharacterName string         `json:"character_name"`
	PlayerName    string         `json:"player_name,omitempty"`
	HP            int            `json:"hp"`
	MaxHP         int            `json:"max_hp"`
	AC            int            `json:"ac,omitempty"`
	Background    string         `json:"background,omitempty"`
	Stats         map[string]int `json:"stats,omitempty"`
	Inventory     []string       `json:"inventory,omitempty"` // ordered, duplicates allowed
	Inactive      bool           `json:"inactive,omitempty"`

	// actor is the runtime stat sheet, rebuilt from the serialized
	// fields after load.
	actor *d20.Actor
}

// buildActor constructs the d20 actor from the serialized fields.
func (p *Player) buildActor() error {
	if p.MaxHP <= 0 {
		p.MaxHP = 1
	}
	if p.HP > p.MaxHP {
		p.HP = p.MaxHP
	}
	if p.HP < 0 {
		p.HP = 0
	}

	actor, err := d20.NewActor(p.CharacterName).
		WithHP(p.MaxHP).
		WithAC(p.AC).
		WithAttributes(p.Stats).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build actor for %s: %w", p.CharacterName, err)
	}
	if p.HP != p.MaxHP && p.HP > 0 {
		if err := actor.SetHP(p.HP); err != nil {
			return fmt.Errorf("failed to set HP for %s: %w", p.CharacterName, err)
		}
	}

	p.actor = actor
	return nil
}

// Actor returns the runtime stat sheet, or nil before buildActor runs.
func (p *Player) Actor() *d20.Actor {
	return p.actor
}

// SetHP edits current HP, clamped to [0, MaxHP].
func (p *Player) SetHP(hp int) {
	if hp < 0 {
		hp = 0
	}
	if hp > p.MaxHP {
		hp = p.MaxHP
	}
	p.HP = hp
	if p.actor != nil && hp > 0 {
		_ = p.actor.SetHP(hp)
	}
}

// Stat looks up a named stat, defaulting to 0.
func (p *Player) Stat(name string) int {
	if p.actor != nil {
		if v, ok := p.actor.Attribute(name); ok {
			return v
		}
	}
	return p.Stats[name]
}

// AddItem appends an item to the inventory. Duplicates are allowed.
func (p *Player) AddItem(item string) {
	p.Inventory = append(p.Inventory, item)
}
