package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"chatrelay/pkg/bus"
	"chatrelay/pkg/channel"
	"chatrelay/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	channelName           = "telegram"
	messagePreviewLimit   = 240
	maxMessageRunes       = 4096
	typingRefreshInterval = 4 * time.Second
)

// Adapter relays Telegram chats to the webhook and posts the rendered replies.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run long-polls Telegram and hands each text message to handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, ok := a.inboundFromUpdate(update)
			if !ok {
				continue
			}
			a.relay(ctx, bot, update.Message.Chat.ID, inbound, handler)
		}
	}
}

func (a *Adapter) relay(ctx context.Context, bot *telego.Bot, chatID int64, inbound bus.InboundMessage, handler channel.Handler) {
	a.log.Info("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "session_key", inbound.SessionKey, "content", previewText(inbound.Content))

	stopTyping := a.startTypingIndicator(ctx, bot, chatID)
	outbound, err := handler(ctx, inbound)
	stopTyping()
	if err != nil {
		a.log.Warn("Reply carried an error", "session_key", inbound.SessionKey, "error", err)
	}

	text := replyText(outbound, err)
	if text == "" {
		return
	}
	a.log.Info("Sending message", "chat_id", inbound.ChatID, "session_key", inbound.SessionKey, "content", previewText(text))

	for _, chunk := range splitMessage(text, maxMessageRunes) {
		if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			a.log.Error("Failed to send telegram message", "error", err)
			return
		}
	}
}

// inboundFromUpdate extracts an authorized text message from an update.
func (a *Adapter) inboundFromUpdate(update telego.Update) (bus.InboundMessage, bool) {
	message := update.Message
	if message == nil {
		return bus.InboundMessage{}, false
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		return bus.InboundMessage{}, false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return bus.InboundMessage{}, false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return bus.InboundMessage{}, false
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	return bus.InboundMessage{
		Channel:    channelName,
		SenderID:   senderID,
		ChatID:     chatID,
		SessionKey: sessionKey(chatID),
		Content:    content,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}, true
}

// replyText picks the text to post: the rendered reply, else the error text.
func replyText(outbound bus.OutboundMessage, err error) string {
	if text := strings.TrimSpace(outbound.Content); text != "" {
		return text
	}
	if text := strings.TrimSpace(outbound.Error); text != "" {
		return text
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// splitMessage cuts text into chunks of at most limit runes, preferring line
// boundaries.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}

	return chunks
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// sessionKey maps one Telegram chat to one conversation.
func sessionKey(chatID string) string {
	return "telegram:" + strings.TrimSpace(chatID)
}

func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return string([]rune(trimmed)[:messagePreviewLimit]) + "..."
}

// startTypingIndicator keeps the typing action alive until the returned func
// is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot *telego.Bot, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
