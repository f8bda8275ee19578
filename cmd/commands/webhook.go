package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

// NewWebhookCommand returns the webhook subcommand.
func NewWebhookCommand() *cli.Command {
	return &cli.Command{
		Name:  "webhook",
		Usage: "Manage the Telegram webhook registration",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Point the bot at this server",
				ArgsUsage: "[url]",
				Action:    runWebhookSet,
			},
			{
				Name:   "delete",
				Usage:  "Remove the webhook",
				Action: runWebhookDelete,
			},
			{
				Name:   "info",
				Usage:  "Show the current webhook status",
				Action: runWebhookInfo,
			},
		},
		DefaultCommand: "info",
	}
}

func runWebhookSet(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url := cfg.Telegram.WebhookURL
	if arg := cmd.Args().First(); arg != "" {
		url = arg
	}
	if url == "" {
		return fmt.Errorf("usage: lazytasks webhook set <url> (or set telegram.webhook_url)")
	}
	if !strings.HasSuffix(url, "/webhook/telegram") {
		url = strings.TrimRight(url, "/") + "/webhook/telegram"
	}

	tg, err := newTelegramClient(cfg)
	if err != nil {
		return err
	}
	if err := tg.SetWebhook(ctx, url, cfg.Telegram.WebhookSecret); err != nil {
		return err
	}
	fmt.Printf("Webhook set to %s\n", url)
	if cfg.Telegram.WebhookSecret == "" {
		fmt.Println("Warning: no webhook secret configured; deliveries are not authenticated.")
	}
	return nil
}

func runWebhookDelete(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tg, err := newTelegramClient(cfg)
	if err != nil {
		return err
	}
	if err := tg.DeleteWebhook(ctx); err != nil {
		return err
	}
	fmt.Println("Webhook deleted.")
	return nil
}

func runWebhookInfo(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tg, err := newTelegramClient(cfg)
	if err != nil {
		return err
	}
	info, err := tg.GetWebhookInfo(ctx)
	if err != nil {
		return err
	}

	if info.URL == "" {
		fmt.Println("Webhook: NOT SET")
		return nil
	}
	fmt.Printf("Webhook:  %s\n", info.URL)
	fmt.Printf("Pending:  %d\n", info.PendingUpdateCount)
	if info.LastErrorDate > 0 {
		fmt.Printf("Last error: %s (%s)\n", info.LastErrorMessage,
			time.Unix(info.LastErrorDate, 0).Format("2006-01-02 15:04:05"))
	}
	return nil
}
