package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"chatrelay/pkg/bus"
	"chatrelay/pkg/config"
	"chatrelay/pkg/reply"
	"chatrelay/pkg/webhook"
)

var (
	// ErrBusy is returned when a submit arrives while another is in flight.
	ErrBusy = errors.New("conversation is waiting for a reply")
	// ErrEmptyInput is returned for blank user input.
	ErrEmptyInput = errors.New("message is empty")
)

// Transport delivers one user message to the chat backend.
type Transport interface {
	Send(ctx context.Context, sessionID string, message string) (webhook.Response, error)
}

// Options tune a Conversation. Zero values fall back to defaults.
type Options struct {
	SessionKey string
	Pipeline   reply.Pipeline
	ErrorText  string
	Bus        *bus.MessageBus
}

// Conversation pairs a message log with one webhook session. At most one
// submit is in flight at a time.
type Conversation struct {
	sessionID  string
	sessionKey string
	transport  Transport
	pipeline   reply.Pipeline
	errorText  string
	events     *bus.MessageBus
	history    *Log
	busy       atomic.Bool
	log        *slog.Logger
}

func New(transport Transport, opts Options) *Conversation {
	errorText := strings.TrimSpace(opts.ErrorText)
	if errorText == "" {
		errorText = config.DefaultErrorText
	}

	sessionID := uuid.NewString()
	sessionKey := opts.SessionKey
	if sessionKey == "" {
		sessionKey = sessionID
	}

	return &Conversation{
		sessionID:  sessionID,
		sessionKey: sessionKey,
		transport:  transport,
		pipeline:   opts.Pipeline,
		errorText:  errorText,
		events:     opts.Bus,
		history:    NewLog(),
		log:        slog.Default().With("component", "conversation.session", "session_key", sessionKey),
	}
}

func (c *Conversation) SessionID() string {
	return c.sessionID
}

func (c *Conversation) Busy() bool {
	return c.busy.Load()
}

func (c *Conversation) Messages() []Message {
	return c.history.Messages()
}

// Submit sends input to the webhook and appends both sides of the exchange.
// When the webhook cannot be reached the bot message carries the error text and
// the underlying error is returned alongside it.
func (c *Conversation) Submit(ctx context.Context, input string) (Message, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return Message{}, ErrEmptyInput
	}
	if !c.busy.CompareAndSwap(false, true) {
		return Message{}, ErrBusy
	}
	defer c.busy.Store(false)

	c.history.Append(SenderUser, text)
	c.publish(ctx, bus.Event{Type: bus.EventReplyRequested})

	resp, err := c.transport.Send(ctx, c.sessionID, text)
	if err != nil {
		c.log.Warn("Webhook round trip failed", "request_id", resp.RequestID, "error", err)
		c.publish(ctx, bus.Event{
			Type:      bus.EventReplyFailed,
			RequestID: resp.RequestID,
			Error:     err.Error(),
		})
		return c.history.Append(SenderBot, c.errorText), err
	}

	rendered, trace := c.pipeline.Run(resp.Payload)
	c.log.Debug("Reply rendered", "request_id", resp.RequestID, "strategy", trace.Strategy(), "fallback", trace.Fallback)
	c.publish(ctx, bus.Event{
		Type:      bus.EventReplyRendered,
		RequestID: resp.RequestID,
		Payload:   renderedPayload(resp, trace),
	})

	return c.history.Append(SenderBot, rendered), nil
}

func (c *Conversation) publish(ctx context.Context, event bus.Event) {
	if c.events == nil {
		return
	}
	event.SessionKey = c.sessionKey
	c.events.PublishEvent(context.WithoutCancel(ctx), event)
}

func renderedPayload(resp webhook.Response, trace reply.Trace) map[string]string {
	return map[string]string{
		bus.PayloadStrategy:      trace.Strategy(),
		bus.PayloadStatusCode:    strconv.Itoa(resp.StatusCode),
		bus.PayloadDurationMS:    strconv.FormatInt(resp.Duration.Milliseconds(), 10),
		bus.PayloadDepthExceeded: strconv.FormatBool(trace.DepthExceeded),
		bus.PayloadCycleDetected: strconv.FormatBool(trace.CycleDetected),
		bus.PayloadFallback:      strconv.FormatBool(trace.Fallback),
	}
}
