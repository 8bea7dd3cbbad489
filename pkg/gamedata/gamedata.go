// Package gamedata holds the built-in reference tables the game master
// consults for "lookup monster" and "lookup item" commands.
package gamedata

import (
	"fmt"
	"strings"
)

// Monster is a creature stat block in the bestiary.
type Monster struct {
	Name        string   `json:"name"`
	Strength    int      `json:"str"`
	Agility     int      `json:"agi"`
	Presence    int      `json:"pre"`
	Toughness   int      `json:"tou"`
	HP          int      `json:"hp"`
	AC          int      `json:"ac"`
	Attacks     []string `json:"attacks"`
	Special     string   `json:"special"`
	Description string   `json:"description"`
}

// Item is an entry in the item catalog.
type Item struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Value       int    `json:"value"` // in silver
	Properties  string `json:"properties"`
	Description string `json:"description"`
}

// DefaultMonsters returns the built-in bestiary.
func DefaultMonsters() []Monster {
	return []Monster{
		{
			Name: "Skeleton Warrior", Strength: 12, Agility: 10, Presence: 6, Toughness: 8, HP: 20, AC: 14,
			Attacks:     []string{"Rusted Sword (1d6)", "Bone Claw (1d4)"},
			Special:     "Undead: Immune to poison and disease. Takes half damage from piercing weapons.",
			Description: "A grinning skeleton clad in rusted armor, animated by lingering malice.",
		},
		{
			Name: "Dark Cultist", Strength: 10, Agility: 12, Presence: 14, Toughness: 10, HP: 18, AC: 12,
			Attacks:     []string{"Ritual Dagger (1d4+2)", "Dark Incantation (1d8, 30ft range)"},
			Special:     "Sacrificial Rite: Can sacrifice 2 HP to add +2 to any roll.",
			Description: "A robed figure with ritual scars, muttering prayers to something that listens.",
		},
	}
}

// DefaultItems returns the built-in item catalog.
func DefaultItems() []Item {
	return []Item{
		{
			Name: "Hexblade", Type: "weapon", Value: 120,
			Properties:  "Longsword (1d8). On crit, target Presence save or cursed (-2 rolls) 1d4 turns.",
			Description: "A wicked blade with shifting runes along its fuller.",
		},
		{
			Name: "Scroll of Unmaking", Type: "scroll", Value: 200,
			Properties:  "One-time use. Target non-magical object up to door size is disintegrated.",
			Description: "A yellowed parchment whose script hurts the eyes.",
		},
	}
}

// Library provides name lookups over the reference tables.
type Library struct {
	monsters []Monster
	items    []Item
}

// NewLibrary creates a library over the default tables.
func NewLibrary() *Library {
	return &Library{
		monsters: DefaultMonsters(),
		items:    DefaultItems(),
	}
}

// LookupMonster finds a monster by name, case-insensitively.
func (l *Library) LookupMonster(name string) (*Monster, bool) {
	for i := range l.monsters {
		if strings.EqualFold(l.monsters[i].Name, strings.TrimSpace(name)) {
			return &l.monsters[i], true
		}
	}
	return nil, false
}

// LookupItem finds an item by name, case-insensitively.
func (l *Library) LookupItem(name string) (*Item, bool) {
	for i := range l.items {
		if strings.EqualFold(l.items[i].Name, strings.TrimSpace(name)) {
			return &l.items[i], true
		}
	}
	return nil, false
}

// Format renders a monster stat block for display on a client channel.
func (m *Monster) Format() string {
	return fmt.Sprintf(
		"Monster: %s\nStats: STR %d, AGI %d, PRE %d, TOU %d\nHP: %d, AC: %d\nAttacks: %s\nSpecial: %s\nDesc: %s",
		m.Name, m.Strength, m.Agility, m.Presence, m.Toughness,
		m.HP, m.AC, strings.Join(m.Attacks, ", "), m.Special, m.Description)
}

// Format renders an item entry for display on a client channel.
func (i *Item) Format() string {
	return fmt.Sprintf(
		"Item: %s (%s)\nValue: %d silver\nProperties: %s\nDesc: %s",
		i.Name, i.Type, i.Value, i.Properties, i.Description)
}
