package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/gameweaver/pkg/battle"
	"github.com/jwebster45206/gameweaver/pkg/session"
)

const (
	AgentName       = "Game Master"
	PlaceHolderText = "Type a command or talk to the Game Master..."
)

// transcriptLine is one rendered chat line.
type transcriptLine struct {
	speaker string // empty for system output
	text    string
	isError bool
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	sess         *session.Session
	conn         *websocket.Conn
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	transcript []transcriptLine
	players    []session.Player
	quests     map[string]session.Quest
	battle     *battle.State
	lastReply  string
	copied     bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type frameMsg struct {
	frame serverFrame
}

type channelClosedMsg struct {
	err error
}

type sessionMsg struct {
	sess *session.Session
	err  error
}

type progressTickMsg struct{}

type copiedFadeMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	gmStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("86")) // green

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, sess *session.Session, conn *websocket.Conn) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:       cfg,
		client:       client,
		sess:         sess,
		conn:         conn,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		ready:        false,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForFrame())
}

// waitForFrame blocks on the session websocket for the next frame.
func (m ConsoleUI) waitForFrame() tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return channelClosedMsg{err}
		}
		return frameMsg{frame}
	}
}

func (m ConsoleUI) sendChatMessage(input string) tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		if err := sendCommand(conn, input); err != nil {
			return channelClosedMsg{err}
		}
		return nil
	}
}

func (m ConsoleUI) refreshSession() tea.Cmd {
	return func() tea.Msg {
		sess, err := getSession(m.client, m.config.APIBaseURL, m.sess.ID)
		return sessionMsg{sess, err}
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		// Pass mouse events to the chat viewport for scrolling; the
		// other components ignore events outside their bounds.
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil

		case tea.KeyCtrlY:
			if m.lastReply != "" {
				if err := clipboard.WriteAll(m.lastReply); err == nil {
					m.copied = true
					m.metaViewport.SetContent(m.writeMetadata())
					return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
						return copiedFadeMsg{}
					})
				}
			}
			return m, nil

		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0

			m.transcript = append(m.transcript, transcriptLine{speaker: "You", text: input})
			m.writeChatContent()

			return m, tea.Batch(m.sendChatMessage(input), progressTick())
		}

	case frameMsg:
		m = m.applyFrame(msg.frame)
		return m, tea.Batch(m.waitForFrame(), m.refreshSession())

	case channelClosedMsg:
		m.loading = false
		m.err = msg.err
		m.transcript = append(m.transcript, transcriptLine{
			text:    fmt.Sprintf("Connection lost: %v", msg.err),
			isError: true,
		})
		m.writeChatContent()
		return m, nil

	case sessionMsg:
		if msg.err == nil && msg.sess != nil {
			m.sess = msg.sess
			m.metaViewport.SetContent(m.writeMetadata())
		}

	case copiedFadeMsg:
		m.copied = false
		m.metaViewport.SetContent(m.writeMetadata())

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// applyFrame folds one server frame into the model.
func (m ConsoleUI) applyFrame(frame serverFrame) ConsoleUI {
	if frame.Kind != "" {
		switch frame.Kind {
		case "players":
			var players []session.Player
			if err := json.Unmarshal(frame.Data, &players); err == nil {
				m.players = players
			}
		case "history":
			var events []session.Event
			if err := json.Unmarshal(frame.Data, &events); err == nil && len(m.transcript) == 0 {
				// Seed the transcript from history on first connect only
				for _, ev := range events {
					m.transcript = append(m.transcript, historyLine(ev))
				}
				m.writeChatContent()
			}
		case "battle":
			var state *battle.State
			if err := json.Unmarshal(frame.Data, &state); err == nil {
				m.battle = state
			}
		case "quests":
			var quests map[string]session.Quest
			if err := json.Unmarshal(frame.Data, &quests); err == nil {
				m.quests = quests
			}
		}
		m.metaViewport.SetContent(m.writeMetadata())
		return m
	}

	m.loading = false
	line := transcriptLine{speaker: AgentName, text: frame.Message, isError: frame.IsError}
	if frame.IsError {
		line.speaker = ""
	} else {
		m.lastReply = frame.Message
	}
	m.transcript = append(m.transcript, line)
	m.writeChatContent()
	return m
}

func historyLine(ev session.Event) transcriptLine {
	switch ev.Type {
	case session.EventPlayerCommand:
		actor := ev.Actor
		if actor == "" {
			actor = "You"
		}
		return transcriptLine{speaker: actor, text: ev.Text}
	case session.EventNarration:
		return transcriptLine{speaker: AgentName, text: ev.Text}
	default:
		return transcriptLine{text: ev.Text}
	}
}

// writeChatContent rebuilds the viewport from the transcript for the
// current width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("GAMEWEAVER") + "\n\n")
	content.WriteString("Type commands or talk to the Game Master. /help for commands.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	for _, line := range m.transcript {
		switch {
		case line.isError:
			content.WriteString(errorStyle.Render(wordwrap.String(line.text, chatWidth)) + "\n\n")
		case line.speaker == "":
			content.WriteString(systemStyle.Render(wordwrap.String(line.text, chatWidth)) + "\n\n")
		case line.speaker == AgentName:
			wrapped := wordwrap.String(line.text, chatWidth-len(AgentName)-2)
			content.WriteString(gmStyle.Render(AgentName+": ") + wrapped + "\n\n")
		default:
			content.WriteString(userStyle.Render(line.speaker+": ") + wordwrap.String(line.text, chatWidth-len(line.speaker)-2) + "\n\n")
		}
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("SESSION") + "\n\n")

	content.WriteString("Session ID:\n")
	content.WriteString(m.sess.ID.String()[:8] + "...\n\n")

	content.WriteString("Adventure:\n")
	if m.sess.AdventureFile != "" {
		content.WriteString(m.sess.AdventureFile + "\n\n")
	} else {
		content.WriteString("None loaded\n\n")
	}

	if len(m.players) > 0 {
		content.WriteString("Party:\n")
		for _, p := range m.players {
			content.WriteString(fmt.Sprintf("• %s %d/%d HP\n", p.CharacterName, p.HP, p.MaxHP))
		}
		content.WriteString("\n")
	}

	if m.battle != nil && len(m.battle.Combatants) > 0 {
		content.WriteString("Battle:\n")
		for i, c := range m.battle.Combatants {
			marker := "  "
			if i == m.battle.ActiveIndex {
				marker = "▶ "
			}
			content.WriteString(fmt.Sprintf("%s%s %d HP\n", marker, c.Name, c.HP))
		}
		content.WriteString("\n")
	}

	if len(m.quests) > 0 {
		content.WriteString("Quests:\n")
		for _, q := range m.quests {
			content.WriteString(fmt.Sprintf("• %s (%s)\n", q.Title, q.Status))
		}
		content.WriteString("\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• Ctrl+Y: Copy last reply\n")
	content.WriteString("• /help: Help\n")

	if m.copied {
		content.WriteString("\n" + systemStyle.Render("Copied to clipboard"))
	}

	return content.String()
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch cmd {
	case "/help":
		m.textarea.Reset()
		m.loading = true
		m.progressTick = 0
		// Server-side help text covers the game verbs
		return m, tea.Batch(m.sendChatMessage("help"), progressTick())

	case "/quit":
		m.showQuitModal = true
	}

	m.textarea.Reset()
	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to leave the table?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
