package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatrelay/pkg/bus"
	"chatrelay/pkg/reply"
	"chatrelay/pkg/webhook"
)

type fakeTransport struct {
	mu       sync.Mutex
	sessions []string
	messages []string
	payload  any
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeTransport) Send(ctx context.Context, sessionID string, message string) (webhook.Response, error) {
	f.mu.Lock()
	f.sessions = append(f.sessions, sessionID)
	f.messages = append(f.messages, message)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return webhook.Response{}, ctx.Err()
		}
	}

	if f.err != nil {
		return webhook.Response{RequestID: "req-err"}, f.err
	}
	return webhook.Response{Payload: f.payload, StatusCode: 200, RequestID: "req-1"}, nil
}

func TestSubmitRendersReply(t *testing.T) {
	transport := &fakeTransport{payload: reply.DecodeBody([]byte(`{"choices":[{"text":"<b>hi</b> there"}]}`))}
	conv := New(transport, Options{})

	msg, err := conv.Submit(context.Background(), "  hello  ")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if msg.Sender != SenderBot || msg.Text != "hi there" {
		t.Fatalf("reply = %#v", msg)
	}

	history := conv.Messages()
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Sender != SenderUser || history[0].Text != "hello" {
		t.Fatalf("user message = %#v", history[0])
	}
	if transport.messages[0] != "hello" || transport.sessions[0] != conv.SessionID() {
		t.Fatalf("transport saw %v / %v", transport.messages, transport.sessions)
	}
	if conv.Busy() {
		t.Fatal("expected conversation to be idle after submit")
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	conv := New(&fakeTransport{}, Options{})

	if _, err := conv.Submit(context.Background(), " \n\t "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("error = %v, want ErrEmptyInput", err)
	}
	if got := len(conv.Messages()); got != 0 {
		t.Fatalf("len(history) = %d, want 0", got)
	}
}

func TestSubmitFailureAppendsErrorText(t *testing.T) {
	wantErr := errors.New("connection refused")
	conv := New(&fakeTransport{err: wantErr}, Options{ErrorText: "bot is offline"})

	msg, err := conv.Submit(context.Background(), "hello")
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if msg.Sender != SenderBot || msg.Text != "bot is offline" {
		t.Fatalf("error message = %#v", msg)
	}
	if got := len(conv.Messages()); got != 2 {
		t.Fatalf("len(history) = %d, want 2", got)
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	transport := &fakeTransport{payload: "done", block: make(chan struct{}), started: make(chan struct{})}
	conv := New(transport, Options{})

	result := make(chan error, 1)
	go func() {
		_, err := conv.Submit(context.Background(), "first")
		result <- err
	}()

	select {
	case <-transport.started:
	case <-time.After(time.Second):
		t.Fatal("first submit did not reach transport")
	}

	if !conv.Busy() {
		t.Fatal("expected busy while waiting for reply")
	}
	if _, err := conv.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("error = %v, want ErrBusy", err)
	}

	close(transport.block)
	if err := <-result; err != nil {
		t.Fatalf("first submit error: %v", err)
	}

	history := conv.Messages()
	if len(history) != 2 || history[1].Text != "done" {
		t.Fatalf("history = %#v", history)
	}
}

func TestSubmitPublishesEvents(t *testing.T) {
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	events, unsubscribe := mb.SubscribeEvents(context.Background(), 8)
	defer unsubscribe()

	conv := New(&fakeTransport{payload: map[string]any{"reply": "ok"}}, Options{Bus: mb, SessionKey: "telegram:1"})
	if _, err := conv.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	want := []bus.EventType{bus.EventReplyRequested, bus.EventReplyRendered}
	for _, wantType := range want {
		select {
		case got := <-events:
			if got.Type != wantType {
				t.Fatalf("event type = %q, want %q", got.Type, wantType)
			}
			if got.SessionKey != "telegram:1" {
				t.Fatalf("session key = %q", got.SessionKey)
			}
			if got.Type == bus.EventReplyRendered && got.Payload[bus.PayloadStrategy] != reply.StrategyCandidateKey {
				t.Fatalf("payload = %#v", got.Payload)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("missing %q event", wantType)
		}
	}
}

func TestManagerReusesConversationPerKey(t *testing.T) {
	transport := &fakeTransport{payload: "ok"}
	manager := NewManager(transport, Options{})
	t.Cleanup(manager.Close)

	if _, err := manager.Submit(context.Background(), "telegram:100", "one"); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if _, err := manager.Submit(context.Background(), "telegram:100", "two"); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if _, err := manager.Submit(context.Background(), "telegram:200", "three"); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if got := manager.Len(); got != 2 {
		t.Fatalf("conversations = %d, want 2", got)
	}
	if transport.sessions[0] != transport.sessions[1] {
		t.Fatal("expected same webhook session for one key")
	}
	if transport.sessions[0] == transport.sessions[2] {
		t.Fatal("expected distinct webhook sessions per key")
	}
	if got := len(manager.Get("telegram:100").Messages()); got != 4 {
		t.Fatalf("len(history) = %d, want 4", got)
	}

	manager.Close()
	if got := manager.Len(); got != 0 {
		t.Fatalf("conversations after close = %d, want 0", got)
	}
}

func TestManagerConcurrentGet(t *testing.T) {
	manager := NewManager(&fakeTransport{}, Options{})

	const n = 32
	got := make([]*Conversation, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			got[i] = manager.Get("cli")
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if got[i] != got[0] {
			t.Fatal("expected one conversation per key")
		}
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	l := NewLog()
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			l.Append(SenderUser, "hello")
		}()
	}
	wg.Wait()

	if got := l.Len(); got != n {
		t.Fatalf("len = %d, want %d", got, n)
	}

	snapshot := l.Messages()
	snapshot[0].Text = "changed"
	if l.Messages()[0].Text != "hello" {
		t.Fatal("snapshot mutation leaked into log")
	}
}
