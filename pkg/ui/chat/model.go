package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatrelay/pkg/conversation"
)

type mode int

const (
	modeInteractive mode = iota
	modeOneShot
)

const mouseWheelLines = 3

type entryKind int

const (
	entryUser entryKind = iota
	entryBot
	entryError
)

type entry struct {
	kind entryKind
	text string
}

type replyMsg struct {
	message conversation.Message
	err     error
}

type model struct {
	ctx          context.Context
	submitter    Submitter
	mode         mode
	oneShotInput string

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	entries   []entry
	width     int
	height    int
	isReady   bool
	isLoading bool
	lastErr   string
	followLog bool
	runtime   RuntimeInfo
}

func newModel(ctx context.Context, submitter Submitter, runMode mode, prompt string, info RuntimeInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something to the bot..."
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:          ctx,
		submitter:    submitter,
		mode:         runMode,
		oneShotInput: strings.TrimSpace(prompt),
		theme:        defaultTheme(),
		spinner:      spin,
		input:        in,
		viewport:     viewport.New(80, 12),
		width:        100,
		height:       28,
		followLog:    true,
		runtime:      info,
	}
}

func (m *model) Init() tea.Cmd {
	if m.mode == modeOneShot && m.oneShotInput != "" {
		return m.submit(m.oneShotInput)
	}

	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.MouseMsg:
		if m.mode == modeInteractive {
			m.handleViewportMouse(typed)
		}
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}
		if m.mode == modeOneShot {
			return m, nil
		}
		if m.handleViewportKey(typed) {
			return m, nil
		}
		if typed.String() == "enter" {
			return m, m.handleEnter()
		}
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case replyMsg:
		m.handleReply(typed)
		if m.mode == modeOneShot {
			return m, tea.Quit
		}
		return m, nil
	}

	if m.mode != modeInteractive {
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleEnter() tea.Cmd {
	if m.isLoading {
		return nil
	}

	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if isExitCommand(text) {
		return tea.Quit
	}

	m.input.SetValue("")
	return m.submit(text)
}

func (m *model) submit(text string) tea.Cmd {
	m.lastErr = ""
	m.entries = append(m.entries, entry{kind: entryUser, text: text})
	m.isLoading = true
	m.followLog = true
	m.refreshViewport(true)

	return tea.Batch(m.spinner.Tick, submitCmd(m.ctx, m.submitter, text))
}

func (m *model) handleReply(msg replyMsg) {
	m.isLoading = false
	m.lastErr = ""

	switch {
	case msg.err != nil && msg.message.Text != "":
		m.lastErr = msg.err.Error()
		m.entries = append(m.entries, entry{kind: entryError, text: msg.message.Text})
	case msg.err != nil:
		m.lastErr = msg.err.Error()
		m.entries = append(m.entries, entry{kind: entryError, text: msg.err.Error()})
	default:
		m.entries = append(m.entries, entry{kind: entryBot, text: msg.message.Text})
	}

	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.mode == modeOneShot {
		return m.oneShotView()
	}

	header := m.theme.header.Width(m.width - 2).Render("💬 chatrelay")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"webhook:%s · session:%s · turns:%d",
		displayOrNA(m.runtime.Webhook),
		displayOrNA(shortID(m.runtime.SessionID)),
		conversationTurns(m.entries),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send · PgUp/PgDn scroll · End jump latest · Ctrl+C/Esc quit")
	switch {
	case m.isLoading:
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s waiting for the bot...", m.spinner.View()))
	case m.lastErr != "":
		status = m.theme.statusErr.Render("last request failed: " + m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := m.height - 10
	if m.mode == modeOneShot {
		h = m.height - 6
	}

	m.viewport.Width = w
	m.viewport.Height = max(8, h)
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset

	sections := make([]string, 0, len(m.entries))
	for _, item := range m.entries {
		sections = append(sections, m.renderEntry(item, m.viewport.Width))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderEntry(item entry, width int) string {
	text := strings.TrimSpace(item.text)
	switch item.kind {
	case entryUser:
		return lipgloss.JoinVertical(lipgloss.Left, m.theme.userTitle.Render("you"), m.theme.userBox.Width(width).Render(text))
	case entryError:
		return lipgloss.JoinVertical(lipgloss.Left, m.theme.errorTitle.Render("error"), m.theme.errorBox.Width(width).Render(text))
	default:
		return lipgloss.JoinVertical(lipgloss.Left, m.theme.botTitle.Render("bot"), m.theme.botBox.Width(width).Render(text))
	}
}

func (m *model) oneShotView() string {
	width := max(40, m.width-6)
	parts := []string{m.renderEntry(entry{kind: entryUser, text: m.oneShotInput}, width)}

	if m.isLoading {
		parts = append(parts, m.theme.statusBusy.Render(fmt.Sprintf("%s waiting for the bot...", m.spinner.View())))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
	}

	if len(m.entries) > 1 {
		parts = append(parts, m.renderEntry(m.entries[len(m.entries)-1], width))
	}
	if m.lastErr != "" {
		parts = append(parts, m.theme.statusErr.Render(m.lastErr))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		m.followLog = m.viewport.AtBottom()
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

// handleViewportMouse scrolls on wheel events and reports whether it did.
func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(mouseWheelLines)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(mouseWheelLines)
		m.followLog = m.viewport.AtBottom()
		return true
	default:
		return false
	}
}

func submitCmd(ctx context.Context, submitter Submitter, text string) tea.Cmd {
	return func() tea.Msg {
		if submitter == nil {
			return replyMsg{err: errors.New("chat is not connected")}
		}
		message, err := submitter.Submit(ctx, text)
		return replyMsg{message: message, err: err}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func conversationTurns(entries []entry) int {
	count := 0
	for _, item := range entries {
		if item.kind == entryUser {
			count++
		}
	}

	return count
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
