package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatrelay/pkg/config"
	"chatrelay/pkg/reply"
)

const acceptHeader = "application/json, text/plain;q=0.9, */*;q=0.1"

// Request outcomes reported to an Observer.
const (
	OutcomeOK             = "ok"
	OutcomeStatusError    = "status_error"
	OutcomeTransportError = "transport_error"
	OutcomeBodyError      = "body_error"
)

// ErrBodyTooLarge is returned when a reply body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("webhook reply body too large")

// StatusError reports a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned %s", e.Status)
}

// Observer receives one call per finished webhook request.
type Observer interface {
	ObserveRequest(outcome string, duration time.Duration)
}

// Response is a decoded webhook reply.
type Response struct {
	Payload    any
	StatusCode int
	RequestID  string
	Duration   time.Duration
}

// Client posts chat messages to the configured webhook.
type Client struct {
	url          string
	headers      map[string]string
	token        string
	sessionField string
	maxBodyBytes int64
	timeout      time.Duration
	httpClient   *http.Client
	observer     Observer
	log          *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithObserver registers a request observer, typically metrics.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// New builds a client from webhook settings. The bearer token is read from the
// environment variable named by token_env at construction time.
func New(cfg config.WebhookConfig, opts ...Option) (*Client, error) {
	target := strings.TrimSpace(cfg.URL)
	if target == "" {
		return nil, errors.New("webhook url is required")
	}

	timeoutSeconds := cfg.RequestTimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = config.DefaultRequestTimeoutSeconds
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodyBytes
	}

	token := ""
	if name := strings.TrimSpace(cfg.TokenEnv); name != "" {
		token = strings.TrimSpace(os.Getenv(name))
	}

	headers := make(map[string]string, len(cfg.Headers))
	for key, value := range cfg.Headers {
		headers[key] = value
	}

	c := &Client{
		url:          target,
		headers:      headers,
		token:        token,
		sessionField: strings.TrimSpace(cfg.SessionField),
		maxBodyBytes: maxBody,
		timeout:      time.Duration(timeoutSeconds) * time.Second,
		httpClient:   &http.Client{},
		log:          slog.Default().With("component", "webhook.client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Send posts one user message and decodes whatever the webhook answers.
func (c *Client) Send(ctx context.Context, sessionID string, message string) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	requestID := uuid.NewString()
	body, err := c.requestBody(sessionID, message)
	if err != nil {
		return Response{RequestID: requestID}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{RequestID: requestID}, fmt.Errorf("build webhook request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := c.log.With("request_id", requestID, "session_id", sessionID)
	log.Debug("Sending webhook request", "url", c.url, "message_length", len(message))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(OutcomeTransportError, time.Since(start))
		log.Warn("Webhook request failed", "error", err)
		return Response{RequestID: requestID, Duration: time.Since(start)}, fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	duration := time.Since(start)
	result := Response{StatusCode: resp.StatusCode, RequestID: requestID, Duration: duration}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(OutcomeStatusError, duration)
		log.Warn("Webhook returned error status", "status_code", resp.StatusCode, "duration", duration)
		return result, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if readErr != nil {
		c.observe(OutcomeBodyError, duration)
		return result, fmt.Errorf("read webhook reply: %w", readErr)
	}
	if int64(len(raw)) > c.maxBodyBytes {
		c.observe(OutcomeBodyError, duration)
		return result, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, c.maxBodyBytes)
	}

	c.observe(OutcomeOK, duration)
	log.Debug("Webhook reply received", "status_code", resp.StatusCode, "bytes", len(raw), "duration", duration)

	result.Payload = reply.DecodeBody(raw)
	return result, nil
}

func (c *Client) requestBody(sessionID string, message string) ([]byte, error) {
	payload := map[string]string{"message": message}
	if c.sessionField != "" && c.sessionField != "message" {
		payload[c.sessionField] = sessionID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook request: %w", err)
	}

	return body, nil
}

func (c *Client) observe(outcome string, duration time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(outcome, duration)
	}
}
