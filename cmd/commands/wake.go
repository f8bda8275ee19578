package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lazytasks/internal/config"
)

// NewWakeCommand returns the onboarding subcommand.
func NewWakeCommand() *cli.Command {
	return &cli.Command{
		Name:   "wake",
		Usage:  "Initialize the Lazy Tasks home directory (~/.lazytasks)",
		Action: runWake,
	}
}

func runWake(_ context.Context, _ *cli.Command) error {
	root := config.AppPath()
	created := false

	// Ensure directories exist.
	dirs := []string{
		root,
		filepath.Join(root, "logs"),
		filepath.Join(root, "prompts", "system"),
		filepath.Join(root, "prompts", "templates"),
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", d, err)
			}
			fmt.Printf("  Created %s\n", d)
			created = true
		}
	}

	// Write default config if missing.
	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("  Created %s\n", configPath)
		created = true
	}

	// Write default .env if missing.
	dotenvPath := config.DotenvPath()
	if _, err := os.Stat(dotenvPath); err != nil {
		if err := os.WriteFile(dotenvPath, []byte(defaultDotenv), 0o600); err != nil {
			return fmt.Errorf("write .env: %w", err)
		}
		fmt.Printf("  Created %s\n", dotenvPath)
		created = true
	}

	if !created {
		fmt.Printf("Already set up: %s is complete. Nothing to do.\n", root)
		return nil
	}

	fmt.Println(wakeMessage(root))
	return nil
}

const defaultConfig = `{
	// Lazy Tasks configuration

	"app": {
		"env": "development",
		"log_level": "info",
		"timezone": "Asia/Ho_Chi_Minh"
	},

	"gateway": {
		"host": "127.0.0.1",
		"port": 8000
	},

	"telegram": {
		"bot_token": "${{ .Env.TELEGRAM_BOT_TOKEN }}",
		"webhook_secret": "${{ .Env.TELEGRAM_WEBHOOK_SECRET }}"
		// "webhook_url": "https://example.com"
	},

	"models": {
		"default": "openai",
		"providers": {
			"openai": {
				"driver": "openai",
				"model": "gpt-4o",
				"auth": {
					"api_key": "${{ .Env.OPENAI_API_KEY }}"
				}
			}

			// Local model via Ollama (no auth required)
			// "local": {
			// 	"driver": "ollama",
			// 	"model": "llama3.1:8b",
			// 	"base_url": "http://localhost:11434"
			// }
		}
	},

	"capabilities": {
		"classify": { "temperature": 0.3 },
		"synthesize": { "temperature": 0.7 },
		"retry": { "attempts": 3, "min_delay": "1s", "max_delay": "10s" }
	},

	"events": {
		"buffer_size": 1024
	}
}
`

const defaultDotenv = `# Lazy Tasks environment variables
# This file is loaded automatically. Existing env vars are never overridden.
# Use "lazytasks secrets set KEY" to store an encrypted value.

# OPENAI_API_KEY=sk-...
# TELEGRAM_BOT_TOKEN=123456:ABC...
# TELEGRAM_WEBHOOK_SECRET=...
`

func wakeMessage(root string) string {
	return fmt.Sprintf(`
  Lazy Tasks is set up at %s

  Next steps:
    1. Store your keys: lazytasks secrets set OPENAI_API_KEY
    2. Tweak %s/config.jsonc if you feel like it
    3. Run: lazytasks serve
    4. Register the bot: lazytasks webhook set https://your.host
`, root, root)
}
