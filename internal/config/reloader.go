package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Reloader holds the live config. Readers call Current on every use so a
// reload (typically on SIGHUP) reaches the webhook secret and log level
// without a restart.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)
	transform func(*Config) error
}

func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{
		configPath: configPath,
		dotenvPath: dotenvPath,
	}
	r.current.Store(initial)
	return r
}

// SetTransform registers a hook run on every freshly loaded config before it
// becomes current, e.g. secret decryption. A failing transform aborts the reload.
func (r *Reloader) SetTransform(fn func(*Config) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transform = fn
}

func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers fn to run after each successful reload.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-reads .env (overriding), then the config file. On any error the
// current config stays in place.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}

	cfg, err := Load(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if r.transform != nil {
		if err := r.transform(cfg); err != nil {
			return fmt.Errorf("reload config: %w", err)
		}
	}

	r.current.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath)

	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads once per signal received on trigger until ctx ends or
// trigger closes. Failures are logged and the previous config is kept.
func (r *Reloader) Watch(ctx context.Context, trigger <-chan os.Signal) {
	for {
		select {
		case sig, ok := <-trigger:
			if !ok {
				return
			}
			slog.Info("reloading config", "signal", sig)
			if err := r.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
