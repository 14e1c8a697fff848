package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/bus"
	"chatrelay/pkg/channel"
	"chatrelay/pkg/config"
	"chatrelay/pkg/reply"
	"chatrelay/pkg/webhook"
)

// scriptedTransport answers every message with a fixed JSON body.
type scriptedTransport struct {
	mu sync.Mutex

	body       string
	err        error
	sessionIDs []string
	messages   []string
}

func (p *scriptedTransport) Send(_ context.Context, sessionID string, message string) (webhook.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionIDs = append(p.sessionIDs, sessionID)
	p.messages = append(p.messages, message)

	if p.err != nil {
		return webhook.Response{RequestID: "req-failed"}, p.err
	}

	body := p.body
	if body == "" {
		body = fmt.Sprintf(`{"reply": "ok:%s"}`, message)
	}
	return webhook.Response{Payload: reply.DecodeBody([]byte(body)), StatusCode: http.StatusOK, RequestID: "req-ok"}, nil
}

func (p *scriptedTransport) snapshot() ([]string, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.sessionIDs...), append([]string(nil), p.messages...)
}

type scriptedAdapter struct {
	name    string
	inbound []bus.InboundMessage

	continueOnHandlerError bool

	mu       sync.Mutex
	outbound []bus.OutboundMessage
	done     chan struct{}
}

func (a *scriptedAdapter) Name() string {
	return a.name
}

func (a *scriptedAdapter) Run(ctx context.Context, handler channel.Handler) error {
	for _, inbound := range a.inbound {
		outbound, err := handler(ctx, inbound)
		if err != nil && !a.continueOnHandlerError {
			return err
		}

		a.mu.Lock()
		a.outbound = append(a.outbound, outbound)
		a.mu.Unlock()
	}

	close(a.done)

	<-ctx.Done()
	return nil
}

func (a *scriptedAdapter) outbounds() []bus.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()

	outbound := make([]bus.OutboundMessage, len(a.outbound))
	copy(outbound, a.outbound)
	return outbound
}

func runScripted(t *testing.T, cfg *config.Config, transport *scriptedTransport, adapter *scriptedAdapter) *Service {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := newService(cfg, []channel.Adapter{adapter}, transport, nil, slog.Default())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	select {
	case <-adapter.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for adapter scripted messages")
	}

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}

	return svc
}

func testGatewayConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Gateway: config.GatewayConfig{
			Host: "127.0.0.1",
			Port: freeTCPPort(t),
		},
	}
}

func TestGatewayServiceRunE2ESessionContinuity(t *testing.T) {
	transport := &scriptedTransport{}
	adapter := &scriptedAdapter{
		name: "telegram",
		inbound: []bus.InboundMessage{
			{Channel: "telegram", ChatID: "100", SessionKey: "telegram:100", Content: "one"},
			{Channel: "telegram", ChatID: "100", SessionKey: "telegram:100", Content: "two"},
			{Channel: "telegram", ChatID: "200", SessionKey: "telegram:200", Content: "three"},
		},
		done: make(chan struct{}),
	}

	runScripted(t, testGatewayConfig(t), transport, adapter)

	sessionIDs, messages := transport.snapshot()
	require.Equal(t, []string{"one", "two", "three"}, messages)
	require.Len(t, sessionIDs, 3)
	require.Equal(t, sessionIDs[0], sessionIDs[1])
	require.NotEqual(t, sessionIDs[0], sessionIDs[2])

	outbounds := adapter.outbounds()
	require.Len(t, outbounds, 3)
	require.Equal(t, "ok:one", outbounds[0].Content)
	require.Equal(t, "ok:two", outbounds[1].Content)
	require.Equal(t, "ok:three", outbounds[2].Content)
	require.Equal(t, "telegram:100", outbounds[0].SessionKey)
	require.Equal(t, "telegram:200", outbounds[2].SessionKey)
}

func TestGatewayServiceRunE2ENormalizesMarkupReplies(t *testing.T) {
	transport := &scriptedTransport{body: `{"choices":[{"text":"` + "```html\\n<p>Hi <script>x()</script>there</p>\\n```" + `"}]}`}
	adapter := &scriptedAdapter{
		name: "telegram",
		inbound: []bus.InboundMessage{
			{Channel: "telegram", ChatID: "100", SessionKey: "telegram:100", Content: "hello"},
		},
		done: make(chan struct{}),
	}

	svc := runScripted(t, testGatewayConfig(t), transport, adapter)

	outbounds := adapter.outbounds()
	require.Len(t, outbounds, 1)
	require.Equal(t, "Hi there", outbounds[0].Content)
	require.Empty(t, outbounds[0].Error)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(svc.metrics.replies.WithLabelValues(reply.StrategyChoices)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestGatewayServiceRunE2EWebhookFailureReturnsErrorText(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Reply.ErrorText = "bot unavailable"

	transport := &scriptedTransport{err: errors.New("connection refused")}
	adapter := &scriptedAdapter{
		name:                   "telegram",
		continueOnHandlerError: true,
		inbound: []bus.InboundMessage{
			{Channel: "telegram", ChatID: "100", SessionKey: "telegram:100", Content: "trigger error"},
		},
		done: make(chan struct{}),
	}

	runScripted(t, cfg, transport, adapter)

	outbounds := adapter.outbounds()
	require.Len(t, outbounds, 1)
	require.Equal(t, "bot unavailable", outbounds[0].Content)
	require.Contains(t, outbounds[0].Error, "connection refused")
	require.Equal(t, "telegram:100", outbounds[0].SessionKey)
}

func TestGatewayServiceReadyzWhileRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testGatewayConfig(t)
	adapter := &scriptedAdapter{name: "telegram", done: make(chan struct{})}
	svc, err := newService(cfg, []channel.Adapter{adapter}, &scriptedTransport{}, nil, slog.Default())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", cfg.Gateway.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(readyURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 25*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
