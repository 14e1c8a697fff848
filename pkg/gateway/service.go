package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatrelay/pkg/bus"
	"chatrelay/pkg/channel"
	"chatrelay/pkg/config"
	"chatrelay/pkg/conversation"
	"chatrelay/pkg/reply"
	"chatrelay/pkg/webhook"
)

// Service runs channel adapters against per-chat conversations and serves the
// status, metrics and normalize endpoints.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *bus.MessageBus
	metrics  *Metrics
	pipeline reply.Pipeline
	manager  *conversation.Manager
	channels []channel.Adapter

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Conversations int                     `json:"conversations"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService wires the webhook client, metrics and conversation manager.
func NewService(cfg *config.Config, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	metrics := NewMetrics()
	client, err := webhook.New(cfg.Webhook, webhook.WithObserver(metrics))
	if err != nil {
		return nil, fmt.Errorf("initialize webhook client: %w", err)
	}

	return newService(cfg, adapters, client, metrics, log)
}

func newService(cfg *config.Config, adapters []channel.Adapter, transport conversation.Transport, metrics *Metrics, log *slog.Logger) (*Service, error) {
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	pipeline := reply.Pipeline{
		Resolver: reply.Resolver{MaxDepth: cfg.Reply.MaxDepth},
		Fallback: cfg.Reply.Fallback,
	}

	events := bus.NewMessageBus()
	manager := conversation.NewManager(transport, conversation.Options{
		Pipeline:  pipeline,
		ErrorText: cfg.Reply.ErrorMessage(),
		Bus:       events,
	})

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           events,
		metrics:       metrics,
		pipeline:      pipeline,
		manager:       manager,
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

// Run blocks until ctx is done or a channel or the HTTP server fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	defer s.bus.Close()
	defer s.manager.Close()

	events, unsubscribe := s.bus.SubscribeEvents(ctx, 0)
	defer unsubscribe()
	go s.watchEvents(events)

	serverErrors := make(chan error, 1)
	go s.runHTTPServer(ctx, serverErrors)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Service) handleInbound(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	outbound := bus.OutboundMessage{
		Channel:    inbound.Channel,
		ChatID:     inbound.ChatID,
		SessionKey: inbound.SessionKey,
	}

	msg, err := s.manager.Submit(ctx, inbound.SessionKey, inbound.Content)
	outbound.Content = msg.Text
	if err != nil {
		outbound.Error = err.Error()
		return outbound, err
	}

	return outbound, nil
}

// watchEvents logs reply lifecycle events and feeds reply metrics.
func (s *Service) watchEvents(events <-chan bus.Event) {
	log := s.log.With("component", "gateway.events")
	for event := range events {
		s.metrics.ObserveEvent(event)

		attrs := []any{"event", event.Type, "session_key", event.SessionKey}
		if event.RequestID != "" {
			attrs = append(attrs, "request_id", event.RequestID)
		}
		for _, key := range []string{bus.PayloadStrategy, bus.PayloadStatusCode, bus.PayloadDurationMS} {
			if value, ok := event.Payload[key]; ok {
				attrs = append(attrs, key, value)
			}
		}

		if event.Type == bus.EventReplyFailed {
			log.Error("Reply failed", append(attrs, "error", event.Error)...)
			continue
		}
		log.Info("Reply event", attrs...)
	}
}

func (s *Service) runHTTPServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = config.DefaultGatewayHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = config.DefaultGatewayPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway HTTP server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start gateway server: %w", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Conversations: s.manager.Len(),
		Channels:      channels,
	}
}

// isReady reports whether at least one channel is running.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
