package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatrelay/pkg/config"
	"chatrelay/pkg/conversation"
	"chatrelay/pkg/reply"
	"chatrelay/pkg/ui/chat"
	"chatrelay/pkg/webhook"

	"github.com/spf13/cobra"
)

var (
	promptText string
	plainMode  bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a message or start an interactive chat",
	Long:  "Loads chatrelay configuration, sends one message to the webhook or starts an interactive chat, and prints the normalized replies.",
	Run: func(cmd *cobra.Command, args []string) {
		prompt := resolvePrompt(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			fmt.Printf("invalid config: %v\n", err)
			return
		}

		logOutput := io.Writer(os.Stderr)
		if !plainMode {
			logOutput = io.Discard
		}
		if err := setupLogging(cfg.Logging, logOutput); err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}

		client, err := webhook.New(cfg.Webhook)
		if err != nil {
			fmt.Printf("failed to initialize webhook client: %v\n", err)
			return
		}
		conv := newConversation(cfg, client)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		info := chat.RuntimeInfo{Webhook: webhookHost(cfg.Webhook.URL), SessionID: conv.SessionID()}
		switch {
		case plainMode && prompt != "":
			runSinglePrompt(ctx, conv, prompt, os.Stdout)
		case plainMode:
			runPlain(ctx, conv, os.Stdin, os.Stdout)
		case prompt != "":
			if err := chat.RunOneShot(ctx, conv, prompt, info); err != nil {
				fmt.Printf("chat failed: %v\n", err)
			}
		default:
			if err := chat.RunInteractive(ctx, conv, info); err != nil {
				fmt.Printf("chat failed: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "message to send")
	chatCmd.Flags().BoolVar(&plainMode, "plain", false, "use a line-oriented prompt instead of the full-screen UI")
}

func newConversation(cfg *config.Config, transport conversation.Transport) *conversation.Conversation {
	return conversation.New(transport, conversation.Options{
		Pipeline: reply.Pipeline{
			Resolver: reply.Resolver{MaxDepth: cfg.Reply.MaxDepth},
			Fallback: cfg.Reply.Fallback,
		},
		ErrorText: cfg.Reply.ErrorMessage(),
	})
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func runSinglePrompt(ctx context.Context, submitter chat.Submitter, prompt string, out io.Writer) {
	msg, err := submitter.Submit(ctx, prompt)
	printBotMessage(out, msg.Text)
	if err != nil {
		fmt.Fprintf(out, "request failed: %v\n", err)
	}
}

func runPlain(ctx context.Context, submitter chat.Submitter, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Fprintf(out, "input error: %v\n", err)
			}
			return
		}

		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if isExitCommand(prompt) {
			return
		}

		msg, err := submitter.Submit(ctx, prompt)
		if errors.Is(err, context.Canceled) {
			return
		}
		printBotMessage(out, msg.Text)
		if err != nil {
			fmt.Fprintf(out, "request failed: %v\n\n", err)
		}
	}
}

func printBotMessage(out io.Writer, message string) {
	lines := botLines(message)
	for _, line := range lines {
		fmt.Fprintf(out, "bot> %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Fprintln(out)
	}
}

func botLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func webhookHost(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return ""
	}

	return parsed.Host
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
