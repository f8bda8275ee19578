package config

import (
	"log/slog"
	"time"
)

// Config is the root configuration for Lazy Tasks.
type Config struct {
	App          AppConfig          `json:"app"`
	Gateway      GatewayConfig      `json:"gateway"`
	Telegram     TelegramConfig     `json:"telegram"`
	Database     DatabaseConfig     `json:"database"`
	Models       ModelsConfig       `json:"models"`
	Capabilities CapabilitiesConfig `json:"capabilities"`
	Prompts      PromptsConfig      `json:"prompts"`
	Events       EventsConfig       `json:"events"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Env      string `json:"env"`                // "development" or "production"
	LogLevel string `json:"log_level"`          // debug, info, warn, error
	Timezone string `json:"timezone,omitempty"` // IANA name used to display dates
}

// Location resolves Timezone, falling back to the local zone.
func (a AppConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		slog.Warn("unknown timezone, using local", "timezone", a.Timezone, "error", err)
		return time.Local
	}
	return loc
}

// IsDevelopment reports whether the app runs in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	BotToken      string   `json:"bot_token,omitempty"`
	WebhookSecret string   `json:"webhook_secret,omitempty"`
	WebhookURL    string   `json:"webhook_url,omitempty"`
	APIBase       string   `json:"api_base,omitempty"`
	RateLimit     float64  `json:"rate_limit,omitempty"` // messages per second
	Timeout       Duration `json:"timeout,omitempty"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "openai", "anthropic", "ollama", "gemini"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
	Token  string `json:"token,omitempty"`   // OAuth/Bearer token
}

// CapabilitiesConfig binds the classify and synthesize capabilities to providers.
type CapabilitiesConfig struct {
	Classify   CapabilityConfig `json:"classify"`
	Synthesize CapabilityConfig `json:"synthesize"`
	Retry      RetryConfig      `json:"retry"`
}

// CapabilityConfig selects the provider and sampling temperature for one capability.
// An empty provider means models.default.
type CapabilityConfig struct {
	Provider    string   `json:"provider,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// RetryConfig bounds capability retries.
type RetryConfig struct {
	Attempts int      `json:"attempts"`
	MinDelay Duration `json:"min_delay"`
	MaxDelay Duration `json:"max_delay"`
}

// PromptsConfig configures prompt loading.
type PromptsConfig struct {
	Dir string `json:"dir,omitempty"` // override directory (default: embedded prompts only)
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
