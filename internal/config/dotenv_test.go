package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDotenv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDotenv(t *testing.T) {
	path := writeDotenv(t, `# Telegram
LT_BOT_TOKEN=123:abc
export LT_EXPORTED=yes

LT_QUOTED="with \"escaped\" quotes"
LT_SINGLE='single-quoted'
LT_SPACED = spaced_value
not a pair
`)

	for _, k := range []string{"LT_BOT_TOKEN", "LT_EXPORTED", "LT_QUOTED", "LT_SINGLE", "LT_SPACED"} {
		os.Unsetenv(k)
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key, want string
	}{
		{"LT_BOT_TOKEN", "123:abc"},
		{"LT_EXPORTED", "yes"},
		{"LT_QUOTED", `with "escaped" quotes`},
		{"LT_SINGLE", "single-quoted"},
		{"LT_SPACED", "spaced_value"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadDotenvNoOverride(t *testing.T) {
	path := writeDotenv(t, "LT_EXISTING=new-value\n")
	t.Setenv("LT_EXISTING", "original")

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("LT_EXISTING"); got != "original" {
		t.Errorf("expected existing var to be preserved, got %q", got)
	}
}

func TestReloadDotenvOverrides(t *testing.T) {
	path := writeDotenv(t, "LT_EXISTING=new-value\n")
	t.Setenv("LT_EXISTING", "original")

	if err := ReloadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("LT_EXISTING"); got != "new-value" {
		t.Errorf("expected override, got %q", got)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	if err := LoadDotenv("/nonexistent/.env"); err != nil {
		t.Errorf("missing file should be silently ignored, got: %v", err)
	}
}
