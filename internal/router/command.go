package router

import "strings"

// CommandKind is the fixed verb set understood by the router. Anything
// that does not match a verb is freeform narrative input.
type CommandKind int

const (
	CmdHelp CommandKind = iota
	CmdStart
	CmdPlayers
	CmdGames
	CmdSelect
	CmdVoiceOn
	CmdVoiceOff
	CmdSave
	CmdHistory
	CmdRoll
	CmdLookupMonster
	CmdLookupItem
	CmdFreeform
)

// Command is a parsed player command.
type Command struct {
	Kind CommandKind
	Arg  string // expression, file number, or lookup name
	Raw  string
}

// ParseCommand maps raw input onto the verb set. Verbs are matched on
// the first word, case-insensitive. Unrecognized input falls through
// to freeform.
func ParseCommand(raw string) Command {
	trimmed := strings.TrimSpace(raw)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return Command{Kind: CmdFreeform, Raw: trimmed}
	}

	verb := strings.ToLower(fields[0])
	rest := strings.TrimSpace(trimmed[len(fields[0]):])

	switch verb {
	case "help":
		return Command{Kind: CmdHelp, Raw: trimmed}
	case "start":
		return Command{Kind: CmdStart, Raw: trimmed}
	case "players":
		return Command{Kind: CmdPlayers, Raw: trimmed}
	case "games":
		return Command{Kind: CmdGames, Raw: trimmed}
	case "select":
		if rest != "" {
			return Command{Kind: CmdSelect, Arg: rest, Raw: trimmed}
		}
	case "voice":
		switch strings.ToLower(rest) {
		case "on":
			return Command{Kind: CmdVoiceOn, Raw: trimmed}
		case "off":
			return Command{Kind: CmdVoiceOff, Raw: trimmed}
		}
	case "save":
		return Command{Kind: CmdSave, Raw: trimmed}
	case "history":
		return Command{Kind: CmdHistory, Raw: trimmed}
	case "roll":
		if rest != "" {
			return Command{Kind: CmdRoll, Arg: rest, Raw: trimmed}
		}
	case "lookup":
		sub := strings.Fields(rest)
		if len(sub) >= 2 {
			name := strings.TrimSpace(rest[len(sub[0]):])
			switch strings.ToLower(sub[0]) {
			case "monster":
				return Command{Kind: CmdLookupMonster, Arg: name, Raw: trimmed}
			case "item":
				return Command{Kind: CmdLookupItem, Arg: name, Raw: trimmed}
			}
		}
	}

	return Command{Kind: CmdFreeform, Arg: trimmed, Raw: trimmed}
}

// HelpText enumerates the verb set for players.
func HelpText() string {
	return strings.Join([]string{
		"Available commands:",
		"  help                    - show this help",
		"  start                   - begin the adventure",
		"  players                 - list active players",
		"  games                   - list available adventure files",
		"  select <n>              - load adventure file number n",
		"  voice on | voice off    - toggle the voice channel",
		"  save                    - save the game now",
		"  history                 - show recent game history",
		"  roll <dice>             - roll dice, e.g. roll 2d6+3",
		"  lookup monster <name>   - look up a monster stat block",
		"  lookup item <name>      - look up an item",
		"Anything else is sent to the Game Master.",
	}, "\n")
}
