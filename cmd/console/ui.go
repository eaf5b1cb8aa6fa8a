package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/dialogue-engine/internal/apiclient"
	"github.com/jwebster45206/dialogue-engine/internal/handlers"
	"github.com/jwebster45206/dialogue-engine/pkg/engine"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

const (
	PlaceHolderText = "Type a choice number, or /help..."
	requestTimeout  = 10 * time.Second
)

type entryKind int

const (
	entryNode entryKind = iota
	entryPlayer
	entryNotice
	entryError
)

type entry struct {
	kind    entryKind
	speaker string
	text    string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	api          *apiclient.Client
	resumeID     string
	session      *handlers.SessionResponse
	transcript   []entry
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool
	now          func() time.Time

	// Graph selection state
	showGraphModal bool
	graphs         []handlers.GraphSummary
	selectedGraph  int
	loadingGraphs  bool

	// Quit confirmation state
	showQuitModal bool
}

type graphsLoadedMsg struct {
	graphs []handlers.GraphSummary
	err    error
}

type sessionMsg struct {
	session *handlers.SessionResponse
	echo    string // Player line to add to the transcript before the new node
	err     error
}

type tickMsg time.Time

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

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	augmentedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141")). // lavender
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
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

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

// NewConsoleUI builds the model. A non-empty resumeID skips graph selection
// and continues that session.
func NewConsoleUI(api *apiclient.Client, resumeID string) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		api:            api,
		resumeID:       resumeID,
		textarea:       ta,
		chatViewport:   chatVp,
		metaViewport:   metaVp,
		now:            time.Now,
		showGraphModal: resumeID == "",
		loadingGraphs:  resumeID == "",
		loading:        resumeID != "",
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.showGraphModal {
		return m.loadGraphs()
	}
	return tea.Batch(m.loadSession(m.resumeID), tick(), textarea.Blink)
}

// action is one parsed line of player input.
type action struct {
	kind    string // choice, interrupt, simulation, goto, help, state, copy, quit
	arg     string
	success bool
	echo    string
}

// parseInput turns a line of input into an action against the current view.
// A bare number picks the visible choice at that position, counting from 1.
func parseInput(input string, view engine.View) (action, error) {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(view.Choices) {
			return action{}, fmt.Errorf("there is no choice %d", n)
		}
		c := view.Choices[n-1]
		return action{kind: "choice", arg: c.ID, echo: c.Text}, nil
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "/wait":
		return action{kind: "interrupt", echo: "(You wait.)"}, nil
	case "/win":
		return action{kind: "simulation", success: true, echo: "(You succeed.)"}, nil
	case "/lose":
		return action{kind: "simulation", success: false, echo: "(You fail.)"}, nil
	case "/goto":
		if arg == "" {
			return action{}, errors.New("usage: /goto <node_id>")
		}
		return action{kind: "goto", arg: arg}, nil
	case "/help":
		return action{kind: "help"}, nil
	case "/state":
		return action{kind: "state"}, nil
	case "/copy":
		return action{kind: "copy"}, nil
	case "/quit":
		return action{kind: "quit"}, nil
	}
	return action{}, fmt.Errorf("unknown input %q, try /help", input)
}

const helpText = `Commands:
• 1, 2, 3... - Pick a choice
• /wait      - Let the moment pass (fires a pending interrupt)
• /win       - Succeed at the current simulation
• /lose      - Fail the current simulation
• /goto <id> - Jump to an entry point
• /state     - Show trust, patterns and flags
• /copy      - Copy the save to the clipboard
• /quit      - Quit`

// characterOf returns the wire record for id, or a zero record.
func characterOf(ws state.WireState, id string) state.WireCharacter {
	for _, c := range ws.Characters {
		if c.ID == id {
			return c
		}
	}
	return state.WireCharacter{ID: id}
}

func writeMetadata(s *handlers.SessionResponse, now time.Time) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("GAME STATE") + "\n\n")
	if s == nil {
		return content.String()
	}
	v, ws := s.View, s.State

	content.WriteString("Session:\n")
	content.WriteString(shortID(s.ID) + "\n\n")

	content.WriteString("Node:\n")
	content.WriteString(v.NodeID + "\n\n")

	char := characterOf(ws, v.CharacterID)
	fmt.Fprintf(&content, "Trust (%s):\n%d\n\n", v.CharacterID, char.Trust)

	fmt.Fprintf(&content, "Orbs:\n%d (earned %d)\n\n", ws.Orbs.Balance, ws.Orbs.TotalEarned)

	content.WriteString("Patterns:\n")
	for _, p := range state.AllPatterns {
		fmt.Fprintf(&content, "• %s: %d\n", p, ws.Patterns.Get(p))
	}
	content.WriteString("\n")

	if len(ws.GlobalFlags) > 0 {
		content.WriteString("Flags:\n")
		for _, f := range ws.GlobalFlags {
			content.WriteString("• " + f + "\n")
		}
		content.WriteString("\n")
	}

	if len(ws.Thoughts) > 0 {
		content.WriteString("Thoughts:\n")
		for _, t := range ws.Thoughts {
			fmt.Fprintf(&content, "• %s %d%%\n", t.Title, t.Progress)
		}
		content.WriteString("\n")
	}

	if it := v.Interrupt; it != nil {
		remaining := max(it.Deadline.Sub(now).Round(time.Second), 0)
		content.WriteString(loadingStyle.Render(fmt.Sprintf("Interrupt in %s", remaining)) + "\n\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• /help: Help\n")
	return content.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// writeTranscript renders the transcript and the current node's options.
func writeTranscript(entries []entry, view *engine.View, width int) string {
	if width < 20 {
		width = 20
	}
	var content strings.Builder
	content.WriteString(titleStyle.Render("DIALOGUE ENGINE") + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	for _, e := range entries {
		switch e.kind {
		case entryNode:
			if e.speaker != "" {
				content.WriteString(speakerStyle.Render(e.speaker+":") + " ")
			}
			content.WriteString(wordwrap.String(e.text, width) + "\n\n")
		case entryPlayer:
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(e.text, width-5) + "\n\n")
		case entryNotice:
			content.WriteString(noticeStyle.Render(wordwrap.String(e.text, width)) + "\n\n")
		case entryError:
			content.WriteString(errorStyle.Render(wordwrap.String("Error: "+e.text, width)) + "\n\n")
		}
	}

	if view == nil {
		return content.String()
	}
	for i, c := range view.Choices {
		line := fmt.Sprintf("%d. %s", i+1, c.Text)
		if c.Augmented {
			content.WriteString(augmentedStyle.Render(wordwrap.String(line+" ✦", width)) + "\n")
			continue
		}
		content.WriteString(choiceStyle.Render(wordwrap.String(line, width)) + "\n")
	}
	if sim := view.Simulation; sim != nil {
		title := sim.Title
		if title == "" {
			title = sim.Type
		}
		content.WriteString(loadingStyle.Render(fmt.Sprintf("Simulation: %s. Type /win or /lose.", title)) + "\n")
	}
	if view.Terminal {
		content.WriteString(promptStyle.Render("The conversation ends here.") + "\n")
	}
	return content.String()
}

func (m *ConsoleUI) refresh() {
	var view *engine.View
	if m.session != nil {
		view = &m.session.View
	}
	m.chatViewport.SetContent(writeTranscript(m.transcript, view, m.chatViewport.Width-6))
	m.chatViewport.GotoBottom()
	m.metaViewport.SetContent(writeMetadata(m.session, m.now()))
}

func (m *ConsoleUI) layout() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6
	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 5
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showGraphModal {
		return m.updateGraphModal(msg)
	}
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
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading || m.session == nil {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m.handleInput(input)
		}

	case sessionMsg:
		m.loading = false
		m.applySession(msg)
		m.refresh()
		return m, nil

	case tickMsg:
		var cmd tea.Cmd
		if m.session != nil && m.session.View.Interrupt != nil && !m.loading &&
			!m.now().Before(m.session.View.Interrupt.Deadline) {
			// The server fires the interrupt on its own; pick up the result.
			m.loading = true
			cmd = m.loadSession(m.session.ID)
		}
		m.metaViewport.SetContent(writeMetadata(m.session, m.now()))
		return m, tea.Batch(cmd, tick())
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// applySession folds a server answer into the transcript.
func (m *ConsoleUI) applySession(msg sessionMsg) {
	if msg.err != nil {
		var apiErr *apiclient.APIError
		if errors.As(msg.err, &apiErr) && apiErr.View != nil && m.session != nil {
			m.session.View = *apiErr.View
		}
		m.transcript = append(m.transcript, entry{kind: entryError, text: msg.err.Error()})
		return
	}

	prev := ""
	if m.session != nil {
		prev = m.session.View.NodeID + "\x00" + m.session.View.Text
	}
	if msg.echo != "" {
		m.transcript = append(m.transcript, entry{kind: entryPlayer, text: msg.echo})
	}
	m.session = msg.session
	v := msg.session.View
	if v.NodeID+"\x00"+v.Text != prev {
		m.transcript = append(m.transcript, entry{kind: entryNode, speaker: v.Speaker, text: v.Text})
	}
}

func (m ConsoleUI) handleInput(input string) (tea.Model, tea.Cmd) {
	act, err := parseInput(input, m.session.View)
	if err != nil {
		m.transcript = append(m.transcript, entry{kind: entryError, text: err.Error()})
		m.refresh()
		return m, nil
	}

	id := m.session.ID
	switch act.kind {
	case "help":
		m.transcript = append(m.transcript, entry{kind: entryNotice, text: helpText})
	case "state":
		m.transcript = append(m.transcript, entry{kind: entryNotice, text: summarizeState(m.session)})
	case "copy":
		data, err := json.MarshalIndent(m.session.State, "", "  ")
		if err == nil {
			err = clipboard.WriteAll(string(data))
		}
		if err != nil {
			m.transcript = append(m.transcript, entry{kind: entryError, text: "failed to copy save: " + err.Error()})
		} else {
			m.transcript = append(m.transcript, entry{kind: entryNotice, text: "Save copied to clipboard."})
		}
	case "quit":
		m.showQuitModal = true
		return m, nil
	default:
		m.loading = true
		m.refresh()
		return m, m.sendAction(id, act)
	}
	m.refresh()
	return m, nil
}

func summarizeState(s *handlers.SessionResponse) string {
	ws := s.State
	var b strings.Builder
	fmt.Fprintf(&b, "Episode %d, %d orbs.\n", ws.Episode, ws.Orbs.Balance)
	for _, c := range ws.Characters {
		fmt.Fprintf(&b, "%s: trust %d, %s, %d lines heard\n", c.ID, c.Trust, c.Relationship, len(c.ConversationHistory))
	}
	if len(ws.GlobalFlags) > 0 {
		fmt.Fprintf(&b, "Flags: %s\n", strings.Join(ws.GlobalFlags, ", "))
	}
	for _, my := range ws.Mysteries {
		fmt.Fprintf(&b, "Mystery %s at stage %d (%d clues)\n", my.ID, my.Stage, len(my.Clues))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m ConsoleUI) sendAction(id string, act action) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var (
			s   *handlers.SessionResponse
			err error
		)
		switch act.kind {
		case "choice":
			s, err = api.SelectChoice(ctx, id, act.arg)
		case "interrupt":
			s, err = api.FireInterrupt(ctx, id)
		case "simulation":
			s, err = api.CompleteSimulation(ctx, id, act.success)
		case "goto":
			s, err = api.Goto(ctx, id, act.arg)
		}
		return sessionMsg{session: s, echo: act.echo, err: err}
	}
}

func (m ConsoleUI) loadSession(id string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		s, err := api.GetSession(ctx, id)
		return sessionMsg{session: s, err: err}
	}
}

func (m ConsoleUI) loadGraphs() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		graphs, err := api.ListGraphs(ctx)
		return graphsLoadedMsg{graphs: graphs, err: err}
	}
}

func (m ConsoleUI) createSession(graphID string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		s, err := api.CreateSession(ctx, graphID)
		return sessionMsg{session: s, err: err}
	}
}

func (m ConsoleUI) updateGraphModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case graphsLoadedMsg:
		m.loadingGraphs = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.graphs = msg.graphs
		}

	case sessionMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.showGraphModal = false
		m.applySession(msg)
		if m.width > 0 && m.height > 0 {
			m.layout()
			m.ready = true
		}
		m.refresh()
		m.textarea.Focus()
		return m, tea.Batch(textarea.Blink, tick())

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			if m.loadingGraphs {
				return m, tea.Quit
			}
			m.showQuitModal = true
			m.showGraphModal = false
			return m, nil
		}
		if m.loadingGraphs || m.loading || m.err != nil {
			return m, nil
		}

		switch msg.Type {
		case tea.KeyUp:
			if m.selectedGraph > 0 {
				m.selectedGraph--
			}
		case tea.KeyDown:
			if m.selectedGraph < len(m.graphs)-1 {
				m.selectedGraph++
			}
		case tea.KeyEnter:
			if len(m.graphs) > 0 {
				m.loading = true
				return m, m.createSession(m.graphs[m.selectedGraph].ID)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		}
		switch msg.String() {
		case "y", "Y":
			return m, tea.Quit
		case "n", "N":
			m.showQuitModal = false
			if m.session == nil {
				m.showGraphModal = true
				return m, nil
			}
			m.textarea.Focus()
			return m, textarea.Blink
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	if m.session != nil {
		content.WriteString("Your progress is saved. Resume with:\n")
		content.WriteString(promptStyle.Render("console --session " + m.session.ID))
	} else {
		content.WriteString("Leave without starting a conversation?")
	}
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderGraphModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingGraphs:
		content.WriteString(modalTitleStyle.Render("Loading Conversations..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch the dialogue graphs..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(m.err.Error()))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Starting..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Opening a new session..."))
	default:
		content.WriteString(modalTitleStyle.Render("Who do you want to talk to?"))
		content.WriteString("\n\n")
		for i, g := range m.graphs {
			label := fmt.Sprintf("%s (%s, %d nodes)", g.ID, g.CharacterID, g.Nodes)
			if i == m.selectedGraph {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + label))
			} else {
				content.WriteString(modalItemStyle.Render("  " + label))
			}
			content.WriteString("\n")
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showGraphModal {
		return m.renderGraphModal()
	}
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	input := m.textarea.View()
	if m.loading {
		input = loadingStyle.Render("...")
	}

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 0))),
			input,
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
