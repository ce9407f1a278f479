// Package tui is the interactive terminal front end of the operator client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/liteclaw/clawsync/internal/state"
)

// Client is the orchestrator as seen by the TUI.
type Client interface {
	Actions
	State() state.AppState
	Subscribe() (<-chan struct{}, func())
}

type model struct {
	ctx     context.Context
	client  Client
	changes <-chan struct{}

	viewport  viewport.Model
	textInput textinput.Model
	spinner   spinner.Model
	ready     bool

	snap   state.AppState
	notice string
}

// Messages
type stateChangedMsg struct{}
type actionDoneMsg struct{}

func newModel(ctx context.Context, client Client, changes <-chan struct{}) model {
	ti := textinput.New()
	ti.Placeholder = "Type a message or /help..."
	ti.Focus()
	ti.CharLimit = 1000000
	ti.Width = 20

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = senderStyle

	return model{
		ctx:       ctx,
		client:    client,
		changes:   changes,
		textInput: ti,
		spinner:   sp,
		snap:      client.State(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForChange(m.ctx, m.changes),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 4
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.KeyMap = scrollKeys()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
		}
		m.textInput.Width = msg.Width - 2
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case stateChangedMsg:
		m.snap = m.client.State()
		m.refresh()
		return m, waitForChange(m.ctx, m.changes)

	case spinner.TickMsg:
		var spCmd tea.Cmd
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, spCmd)
	}

	return m, tea.Batch(tiCmd, vpCmd)
}

// submit handles the input line on enter.
func (m model) submit() (tea.Model, tea.Cmd) {
	line := m.textInput.Value()
	if strings.TrimSpace(line) == "" {
		return m, nil
	}
	m.textInput.SetValue("")

	cmd, err := parseCommand(line)
	if err != nil {
		m.notice = err.Error()
		return m, nil
	}
	m.notice = ""

	switch cmd.name {
	case "quit":
		return m, tea.Quit
	case "help":
		m.notice = helpText
		return m, nil
	}

	ctx, client := m.ctx, m.client
	return m, func() tea.Msg {
		cmd.run(ctx, client)
		return actionDoneMsg{}
	}
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.snap, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m model) headerView() string {
	title := titleStyle.Render("clawsync") + " " + m.snap.SessionKey
	if m.snap.ModelSelection != "" {
		title += " · " + m.snap.ModelSelection
	}

	status := m.snap.StatusText
	if busy(m.snap) {
		status = m.spinner.View() + status
	}

	line := strings.Repeat("─", maximum(0, m.viewport.Width-lipgloss.Width(title)-lipgloss.Width(status)-2))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, " ", line, " ", status)
}

func (m model) footerView() string {
	hint := m.notice
	if hint == "" {
		hint = "enter send · /help commands · esc quit"
	}
	if caps := m.snap.Capabilities.Names(); len(caps) > 0 {
		hint += " · caps: " + strings.Join(caps, ",")
	}
	return infoStyle.Render(m.textInput.View()) + "\n" + helpStyle.Render(hint)
}

// busy reports whether a request or run is in flight.
func busy(s state.AppState) bool {
	switch s.Phase {
	case state.PhaseConnecting, state.PhaseReconnecting:
		return true
	}
	return s.ChatSending || s.ChatLoading || s.ChatRunID != ""
}

// renderTranscript renders the messages, the in-flight stream and the last
// chat error.
func renderTranscript(s state.AppState, width int) string {
	var lines []string
	if s.ChatLoading && len(s.ChatMessages) == 0 {
		lines = append(lines, systemStyle.Render("Loading history..."))
	}
	for _, msg := range s.ChatMessages {
		lines = append(lines, renderMessage(msg))
	}
	if s.ChatStream != "" {
		lines = append(lines, fmt.Sprintf("%s %s▍", assistantStyle.Render("Assistant:"), s.ChatStream))
	}
	if s.ChatError != "" {
		lines = append(lines, errorStyle.Render("Error: "+s.ChatError))
	}

	out := strings.Join(lines, "\n")
	if width > 0 {
		out = lipgloss.NewStyle().Width(width).Render(out)
	}
	return out
}

func renderMessage(msg state.ChatMessage) string {
	switch msg.Role {
	case state.RoleUser:
		return fmt.Sprintf("%s %s", senderStyle.Render("You:"), msg.Text)
	case state.RoleAssistant:
		return fmt.Sprintf("%s %s", assistantStyle.Render("Assistant:"), msg.Text)
	default:
		return systemStyle.Render(msg.Text)
	}
}

// scrollKeys limits viewport scrolling to keys that never type text.
func scrollKeys() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		Up:           key.NewBinding(key.WithKeys("up")),
		Down:         key.NewBinding(key.WithKeys("down")),
	}
}

func maximum(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// waitForChange blocks until the state changes or ctx is done.
func waitForChange(ctx context.Context, changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			return stateChangedMsg{}
		}
	}
}

// Run starts the TUI over client and blocks until the user quits or ctx is
// done.
func Run(ctx context.Context, client Client) error {
	changes, unsubscribe := client.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(newModel(ctx, client, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
