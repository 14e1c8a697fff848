package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath        = "CHATRELAY_CONFIG"
	envWebhookURL        = "CHATRELAY_WEBHOOK_URL"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const (
	DefaultRequestTimeoutSeconds = 30
	DefaultMaxBodyBytes          = 1 << 20
	DefaultErrorText             = "⚠️ Error connecting to chatbot."
	DefaultGatewayHost           = "0.0.0.0"
	DefaultGatewayPort           = 18790
)

// ErrNotFound is returned when no config file exists and no webhook URL is set
// in the environment.
var ErrNotFound = errors.New("config file not found")

// Config is the root runtime configuration loaded from config.json or config.yaml.
type Config struct {
	Webhook  WebhookConfig  `json:"webhook" yaml:"webhook"`
	Reply    ReplyConfig    `json:"reply,omitempty" yaml:"reply,omitempty"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

// WebhookConfig describes the external chat webhook replies are fetched from.
type WebhookConfig struct {
	URL                   string            `json:"url" yaml:"url"`
	Headers               map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	TokenEnv              string            `json:"token_env,omitempty" yaml:"token_env,omitempty"`
	SessionField          string            `json:"session_field,omitempty" yaml:"session_field,omitempty"`
	RequestTimeoutSeconds int               `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty"`
	MaxBodyBytes          int64             `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty"`
}

// ReplyConfig tunes the response normalization pipeline.
type ReplyConfig struct {
	MaxDepth  int    `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	Fallback  string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	ErrorText string `json:"error_text,omitempty" yaml:"error_text,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allow_from" yaml:"allow_from"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// LoadConfig resolves the config file, unmarshals it, and applies environment
// overrides. Without a file, a webhook URL from the environment is enough.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if errors.Is(err, ErrNotFound) && strings.TrimSpace(os.Getenv(envWebhookURL)) != "" {
		cfg := &Config{}
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := parse(configPath, content)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func parse(path string, content []byte) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks settings every command needs.
func (c *Config) Validate() error {
	raw := strings.TrimSpace(c.Webhook.URL)
	if raw == "" {
		return errors.New("webhook.url is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webhook.url is invalid: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("webhook.url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("webhook.url must include a host")
	}
	if c.Webhook.RequestTimeoutSeconds < 0 {
		return errors.New("webhook.request_timeout_seconds must not be negative")
	}
	if c.Reply.MaxDepth < 0 {
		return errors.New("reply.max_depth must not be negative")
	}

	return nil
}

// ErrorMessage returns the message shown when the webhook cannot be reached.
func (c ReplyConfig) ErrorMessage() string {
	if text := strings.TrimSpace(c.ErrorText); text != "" {
		return text
	}

	return DefaultErrorText
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if webhookURL := strings.TrimSpace(os.Getenv(envWebhookURL)); webhookURL != "" {
		cfg.Webhook.URL = webhookURL
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is CHATRELAY_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	var candidates []string
	for _, dir := range []string{cwd, filepath.Join(cwd, "config")} {
		for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s)", ErrNotFound, strings.Join(candidates, ", "))
}
