package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to plain JSON, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes JSONC bytes into a Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	// Templates live inside JSON strings, so expand before standardizing.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with only defaults applied. Used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8000
	}
	if cfg.Telegram.APIBase == "" {
		cfg.Telegram.APIBase = "https://api.telegram.org"
	}
	if cfg.Telegram.RateLimit <= 0 {
		cfg.Telegram.RateLimit = 25
	}
	if cfg.Telegram.Timeout == 0 {
		cfg.Telegram.Timeout = Duration(30 * time.Second)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(AppPath(), "lazytasks.db")
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}

	// Without an explicit provider table, fall back to a single OpenAI provider
	// keyed off OPENAI_API_KEY, as the original deployment did.
	if len(cfg.Models.Providers) == 0 {
		cfg.Models.Providers = map[string]ProviderConfig{
			"openai": {Driver: "openai", Model: "gpt-4o"},
		}
	}
	if cfg.Models.Default == "" {
		for name := range cfg.Models.Providers {
			if cfg.Models.Default == "" || name < cfg.Models.Default {
				cfg.Models.Default = name
			}
		}
	}

	if cfg.Capabilities.Classify.Temperature == nil {
		t := float32(0.3)
		cfg.Capabilities.Classify.Temperature = &t
	}
	if cfg.Capabilities.Synthesize.Temperature == nil {
		t := float32(0.7)
		cfg.Capabilities.Synthesize.Temperature = &t
	}
	if cfg.Capabilities.Retry.Attempts <= 0 {
		cfg.Capabilities.Retry.Attempts = 3
	}
	if cfg.Capabilities.Retry.MinDelay == 0 {
		cfg.Capabilities.Retry.MinDelay = Duration(time.Second)
	}
	if cfg.Capabilities.Retry.MaxDelay == 0 {
		cfg.Capabilities.Retry.MaxDelay = Duration(10 * time.Second)
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
