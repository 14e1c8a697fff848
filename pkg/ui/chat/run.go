package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatrelay/pkg/conversation"
)

// Submitter sends one user message and returns the bot's reply.
type Submitter interface {
	Submit(ctx context.Context, input string) (conversation.Message, error)
}

// RuntimeInfo is shown in the chat header.
type RuntimeInfo struct {
	Webhook   string
	SessionID string
}

func RunInteractive(ctx context.Context, submitter Submitter, info RuntimeInfo) error {
	program := tea.NewProgram(newModel(ctx, submitter, modeInteractive, "", info), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Println(renderGoodbyeBanner())
	return nil
}

func RunOneShot(ctx context.Context, submitter Submitter, prompt string, info RuntimeInfo) error {
	program := tea.NewProgram(newModel(ctx, submitter, modeOneShot, prompt, info))
	_, err := program.Run()
	return err
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("24")).
		Padding(1, 2)

	return style.Render("👋 chat closed")
}
