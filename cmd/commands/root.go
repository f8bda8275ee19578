package commands

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lazytasks/internal/config"
	"github.com/dohr-michael/lazytasks/internal/secrets"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "lazytasks",
		Usage: "Personal AI executive assistant for your tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewWakeCommand(),
			NewServeCommand(),
			NewAskCommand(),
			NewTasksCommand(),
			NewWebhookCommand(),
			NewSecretsCommand(),
			NewStatusCommand(),
			NewMCPServeCommand(),
		},
	}
}

// loadConfig reads the config file named by --config and decrypts its
// secrets. A missing file yields the defaults.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config not found, using defaults", "path", path)
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}
	if err := secrets.DecryptConfig(cfg, secrets.KeyPath()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseLevel maps a config log level to a slog level. Unknown values mean info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// setupLogging installs a stderr text handler. --debug wins over level.
func setupLogging(cmd *cli.Command, level *slog.LevelVar, fallback slog.Level) {
	if cmd.Bool("debug") {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(fallback)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
