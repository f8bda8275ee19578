package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// JSONC comments and trailing commas are accepted
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999,
	},
	"telegram": {
		"bot_token": "${{ .Env.TEST_TG_TOKEN }}",
		"webhook_secret": "s3cret",
		"timeout": "5s"
	},
	"models": {
		"default": "gpt",
		"providers": {
			"gpt": {
				"driver": "openai",
				"model": "gpt-4o",
				"auth": {"api_key": "${{ .Env.TEST_OPENAI_KEY }}"},
				"max_tokens": 2048
			}
		}
	},
	"capabilities": {
		"classify": {"provider": "gpt", "temperature": 0.1},
		"retry": {"attempts": 5, "min_delay": "500ms", "max_delay": "4s"}
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TEST_TG_TOKEN", "123:abc")
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" || cfg.Gateway.Port != 9999 {
		t.Errorf("gateway = %s:%d, want 0.0.0.0:9999", cfg.Gateway.Host, cfg.Gateway.Port)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("bot_token = %q, want env expansion", cfg.Telegram.BotToken)
	}
	if cfg.Telegram.Timeout.Duration() != 5*time.Second {
		t.Errorf("telegram timeout = %s, want 5s", cfg.Telegram.Timeout.Duration())
	}

	p, ok := cfg.Models.Providers["gpt"]
	if !ok {
		t.Fatal("expected gpt provider")
	}
	if p.Auth.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want sk-test", p.Auth.APIKey)
	}
	if p.MaxTokens != 2048 {
		t.Errorf("max_tokens = %d, want 2048", p.MaxTokens)
	}

	if got := *cfg.Capabilities.Classify.Temperature; got != 0.1 {
		t.Errorf("classify temperature = %v, want 0.1", got)
	}
	// Not set in file: default applies.
	if got := *cfg.Capabilities.Synthesize.Temperature; got != 0.7 {
		t.Errorf("synthesize temperature = %v, want 0.7", got)
	}
	if cfg.Capabilities.Retry.Attempts != 5 {
		t.Errorf("retry attempts = %d, want 5", cfg.Capabilities.Retry.Attempts)
	}
	if cfg.Capabilities.Retry.MinDelay.Duration() != 500*time.Millisecond {
		t.Errorf("retry min_delay = %s", cfg.Capabilities.Retry.MinDelay.Duration())
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LAZYTASKS_PATH", "/tmp/lt-test")

	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Gateway.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer_size 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Database.Path != filepath.Join("/tmp/lt-test", "lazytasks.db") {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.Models.Default != "openai" {
		t.Errorf("expected fallback provider openai, got %q", cfg.Models.Default)
	}
	if cfg.Capabilities.Retry.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.Capabilities.Retry.Attempts)
	}
	if cfg.Capabilities.Retry.MaxDelay.Duration() != 10*time.Second {
		t.Errorf("expected 10s max delay, got %s", cfg.Capabilities.Retry.MaxDelay.Duration())
	}
	if !cfg.App.IsDevelopment() {
		t.Error("expected development env by default")
	}
}

func TestLoadDefaultProviderIsStable(t *testing.T) {
	cfg, err := Parse([]byte(`{"models": {"providers": {
		"zeta": {"driver": "ollama"},
		"alpha": {"driver": "openai"}
	}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Models.Default != "alpha" {
		t.Errorf("default = %q, want alpha", cfg.Models.Default)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Parse([]byte(`{"gateway": `)); err == nil {
		t.Fatal("expected error for truncated config")
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("FOO", "bar")

	tests := []struct {
		input string
		want  string
	}{
		{`${{ .Env.FOO }}`, "bar"},
		{`${{.Env.FOO}}`, "bar"},
		{`prefix-${{ .Env.FOO }}-suffix`, "prefix-bar-suffix"},
		{`${{ .Env.NONEXISTENT }}`, ""},
		{`no templates here`, "no templates here"},
	}

	for _, tt := range tests {
		got := expandEnvTemplates(tt.input)
		if got != tt.want {
			t.Errorf("expandEnvTemplates(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
