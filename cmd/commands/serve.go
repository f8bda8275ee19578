package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lazytasks/internal/config"
	"github.com/dohr-michael/lazytasks/internal/dispatch"
	"github.com/dohr-michael/lazytasks/internal/events"
	"github.com/dohr-michael/lazytasks/internal/gateway"
	"github.com/dohr-michael/lazytasks/internal/heartbeat"
	"github.com/dohr-michael/lazytasks/internal/models"
	"github.com/dohr-michael/lazytasks/internal/prompts"
	"github.com/dohr-michael/lazytasks/internal/secrets"
	"github.com/dohr-michael/lazytasks/internal/storage"
	"github.com/dohr-michael/lazytasks/internal/store"
	"github.com/dohr-michael/lazytasks/internal/telegram"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Lazy Tasks server (Telegram webhook, WebSocket, HTTP API)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	var level slog.LevelVar
	setupLogging(cmd, &level, slog.LevelInfo)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Bool("debug") {
		level.Set(parseLevel(cfg.App.LogLevel))
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.SetTransform(secrets.Loader(secrets.KeyPath()))
	reloader.OnReload(func(c *config.Config) {
		if !cmd.Bool("debug") {
			level.Set(parseLevel(c.App.LogLevel))
		}
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloader.Watch(ctx, hup)

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	db, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	promptSet, err := prompts.Load(cfg.Prompts.Dir)
	if err != nil {
		return err
	}

	registry := models.NewRegistry(cfg.Models)
	caps := models.NewCapabilities(registry, cfg.Capabilities, bus)
	slog.Info("models configured", "default", registry.DefaultName(), "providers", registry.Names())

	loc := cfg.App.Location()
	router := dispatch.NewRouter(caps, promptSet, bus, loc)
	commands := dispatch.NewCommands(loc)

	senders := map[string]dispatch.Sender{}
	if cfg.Telegram.BotToken != "" {
		tg, err := newTelegramClient(cfg)
		if err != nil {
			return err
		}
		senders[telegram.Platform] = telegramSender(tg)
	} else {
		slog.Warn("telegram bot token not set, replies are only published on the event bus")
	}

	orchestrator := dispatch.NewOrchestrator(db, router, commands, senders, bus)

	// Persistence subscribers
	usage := storage.NewUsageTracker(bus, db)
	defer usage.Close()
	eventLog := storage.NewEventLogger(filepath.Join(config.AppPath(), "logs"), bus)
	defer eventLog.Close()

	webhookSecret := func() string { return reloader.Current().Telegram.WebhookSecret }
	server := gateway.NewServer(bus, db, orchestrator, webhookSecret, cfg.Gateway.Host, cfg.Gateway.Port)

	hb := heartbeat.NewWriter(config.HeartbeatPath(), heartbeat.Info{
		Addr:     net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port)),
		Database: cfg.Database.Path,
		Telegram: cfg.Telegram.BotToken != "",
	})
	hb.ReportDropped(bus.Dropped)
	hb.Start()
	defer hb.Stop()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for signal or error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newTelegramClient(cfg *config.Config) (*telegram.Client, error) {
	tg, err := telegram.New(telegram.Config{
		Token:     cfg.Telegram.BotToken,
		APIBase:   cfg.Telegram.APIBase,
		RateLimit: cfg.Telegram.RateLimit,
		Timeout:   cfg.Telegram.Timeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}
	return tg, nil
}

// telegramSender delivers replies through the Bot API, in HTML mode when the
// reply asks for it.
func telegramSender(tg *telegram.Client) dispatch.Sender {
	return dispatch.SenderFunc(func(ctx context.Context, chatID int64, reply dispatch.Reply) error {
		parseMode := ""
		if reply.HTML {
			parseMode = telegram.ParseModeHTML
		}
		_, err := tg.SendMessage(ctx, chatID, reply.Text, parseMode)
		return err
	})
}
