package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestReloader_Current(t *testing.T) {
	cfg := &Config{}
	cfg.Gateway.Port = 9999

	r := NewReloader("", "", cfg)
	if got := r.Current(); got.Gateway.Port != 9999 {
		t.Errorf("Current().Gateway.Port = %d, want 9999", got.Gateway.Port)
	}
}

func TestReloader_Reload(t *testing.T) {
	dir := t.TempDir()
	dotenvPath := filepath.Join(dir, ".env")
	configPath := filepath.Join(dir, "config.jsonc")

	if err := os.WriteFile(dotenvPath, []byte("LT_SECRET=initial\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	configContent := `{"telegram": {"webhook_secret": "${{ .Env.LT_SECRET }}"}}`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LT_SECRET", "initial")

	initial := Default()
	r := NewReloader(configPath, dotenvPath, initial)

	var calls atomic.Int32
	r.OnReload(func(*Config) { calls.Add(1) })

	if err := os.WriteFile(dotenvPath, []byte("LT_SECRET=rotated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("listener called %d times, want 1", calls.Load())
	}
	got := r.Current()
	if got == initial {
		t.Fatal("Current() still returns initial config after reload")
	}
	if got.Telegram.WebhookSecret != "rotated" {
		t.Errorf("webhook_secret = %q, want rotated", got.Telegram.WebhookSecret)
	}
}

func TestReloader_TransformFailureKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := Default()
	r := NewReloader(configPath, filepath.Join(dir, ".env"), initial)
	r.SetTransform(func(*Config) error { return errors.New("boom") })

	if err := r.Reload(); err == nil {
		t.Fatal("expected transform error")
	}
	if r.Current() != initial {
		t.Error("failed reload must not replace the current config")
	}
}

func TestReloader_ReloadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{invalid`), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := Default()
	r := NewReloader(configPath, filepath.Join(dir, ".env"), initial)
	if err := r.Reload(); err == nil {
		t.Fatal("expected error for invalid config")
	}
	if r.Current() != initial {
		t.Error("Current() changed after failed reload")
	}
}

func TestReloader_Watch(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{"gateway": {"port": 8100}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReloader(configPath, filepath.Join(dir, ".env"), Default())
	reloaded := make(chan int, 1)
	r.OnReload(func(c *Config) { reloaded <- c.Gateway.Port })

	trigger := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		r.Watch(context.Background(), trigger)
		close(done)
	}()

	trigger <- syscall.SIGHUP
	select {
	case port := <-reloaded:
		if port != 8100 {
			t.Errorf("port = %d, want 8100", port)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for reload")
	}

	close(trigger)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after trigger closed")
	}
}
