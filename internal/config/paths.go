package config

import (
	"os"
	"path/filepath"
)

// AppPath returns the root directory for Lazy Tasks data.
// It uses $LAZYTASKS_PATH if set, otherwise defaults to ~/.lazytasks.
func AppPath() string {
	if v := os.Getenv("LAZYTASKS_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".lazytasks")
	}
	return filepath.Join(home, ".lazytasks")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(AppPath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(AppPath(), ".env")
}

// HeartbeatPath returns the path of the gateway liveness file.
func HeartbeatPath() string {
	return filepath.Join(AppPath(), "heartbeat.json")
}
