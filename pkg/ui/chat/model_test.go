package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"chatrelay/pkg/conversation"
)

type stubSubmitter struct {
	inputs []string
	reply  conversation.Message
	err    error
}

func (s *stubSubmitter) Submit(_ context.Context, input string) (conversation.Message, error) {
	s.inputs = append(s.inputs, input)
	return s.reply, s.err
}

func typeText(m *model, text string) {
	m.input.SetValue(text)
}

func TestEnterSubmitsAndRendersReply(t *testing.T) {
	t.Parallel()

	stub := &stubSubmitter{reply: conversation.Message{Sender: conversation.SenderBot, Text: "hi there"}}
	m := newModel(context.Background(), stub, modeInteractive, "", RuntimeInfo{Webhook: "bot.example.com"})

	typeText(m, "  hello  ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected submit command")
	}
	if !m.isLoading {
		t.Fatal("expected model to be busy after enter")
	}
	if m.input.Value() != "" {
		t.Fatalf("input = %q, want cleared", m.input.Value())
	}

	reply := submitCmd(context.Background(), stub, "hello")()
	m.Update(reply)

	if m.isLoading {
		t.Fatal("expected model to be idle after reply")
	}
	if len(m.entries) != 2 || m.entries[0].kind != entryUser || m.entries[1].kind != entryBot {
		t.Fatalf("entries = %#v", m.entries)
	}
	if m.entries[1].text != "hi there" {
		t.Fatalf("bot text = %q", m.entries[1].text)
	}
	if stub.inputs[0] != "hello" {
		t.Fatalf("submitted = %q", stub.inputs[0])
	}
	if !strings.Contains(m.View(), "bot.example.com") {
		t.Fatal("expected webhook host in header")
	}
}

func TestEnterIgnoredWhileBusy(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), &stubSubmitter{}, modeInteractive, "", RuntimeInfo{})
	m.isLoading = true
	typeText(m, "second")

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("expected no command while busy")
	}
	if len(m.entries) != 0 {
		t.Fatalf("entries = %#v, want none", m.entries)
	}
}

func TestReplyErrorShowsErrorText(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", RuntimeInfo{})
	m.Update(replyMsg{
		message: conversation.Message{Sender: conversation.SenderBot, Text: "⚠️ Error connecting to chatbot."},
		err:     errors.New("webhook returned 502 Bad Gateway"),
	})

	if len(m.entries) != 1 || m.entries[0].kind != entryError {
		t.Fatalf("entries = %#v", m.entries)
	}
	if m.entries[0].text != "⚠️ Error connecting to chatbot." {
		t.Fatalf("error entry = %q", m.entries[0].text)
	}
	if !strings.Contains(m.View(), "502 Bad Gateway") {
		t.Fatal("expected error string in status line")
	}
}

func TestSubmitCmdWithoutSubmitter(t *testing.T) {
	t.Parallel()

	msg := submitCmd(context.Background(), nil, "hello")()
	reply, ok := msg.(replyMsg)
	if !ok || reply.err == nil {
		t.Fatalf("msg = %#v, want error reply", msg)
	}
}

func TestOneShotQuitsAfterReply(t *testing.T) {
	t.Parallel()

	stub := &stubSubmitter{reply: conversation.Message{Sender: conversation.SenderBot, Text: "done"}}
	m := newModel(context.Background(), stub, modeOneShot, "ping", RuntimeInfo{})
	if cmd := m.Init(); cmd == nil {
		t.Fatal("expected one-shot submit on init")
	}
	if len(m.entries) != 1 || m.entries[0].text != "ping" {
		t.Fatalf("entries = %#v", m.entries)
	}

	_, cmd := m.Update(replyMsg{message: stub.reply})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "done") {
		t.Fatal("expected reply in one-shot view")
	}
}

func TestExitCommandQuits(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), &stubSubmitter{}, modeInteractive, "", RuntimeInfo{})
	typeText(m, "/exit")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestIsExitCommand(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"exit", "/exit", " QUIT ", ":q"} {
		if !isExitCommand(input) {
			t.Fatalf("isExitCommand(%q) = false", input)
		}
	}
	if isExitCommand("hello") {
		t.Fatal("isExitCommand(hello) = true")
	}
}

func TestHandleViewportMouseWheelUpDisablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", RuntimeInfo{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()
	m.followLog = true

	previousOffset := m.viewport.YOffset
	if !m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp}) {
		t.Fatal("expected wheel-up mouse event to be handled")
	}
	if m.followLog {
		t.Fatal("expected followLog to be disabled after wheel-up scroll")
	}
	if m.viewport.YOffset >= previousOffset {
		t.Fatalf("expected YOffset to decrease after wheel-up scroll, got %d want < %d", m.viewport.YOffset, previousOffset)
	}
}

func TestHandleViewportMouseWheelDownAtBottomEnablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", RuntimeInfo{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	m.viewport.SetYOffset(max(0, maxOffset-1))
	m.followLog = false

	if !m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelDown}) {
		t.Fatal("expected wheel-down mouse event to be handled")
	}
	if !m.viewport.AtBottom() {
		t.Fatalf("expected viewport to reach bottom, got YOffset=%d", m.viewport.YOffset)
	}
	if !m.followLog {
		t.Fatal("expected followLog to re-enable when wheel-down reaches bottom")
	}
}

func TestHandleViewportMouseIgnoresNonWheelEvents(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", RuntimeInfo{})
	if m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}) {
		t.Fatal("expected non-wheel mouse event to be ignored")
	}
}
