package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/lazytasks/clients/ws"
	wsprotocol "github.com/dohr-michael/lazytasks/internal/gateway/ws"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a message to the running server and print the reply",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway WebSocket URL",
				Value: "ws://127.0.0.1:8000/api/ws",
			},
			&cli.Int64Flag{
				Name:  "chat",
				Usage: "Chat ID of the local conversation",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print bus events received while waiting",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Response timeout in seconds",
				Value: 120,
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	message := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("usage: lazytasks ask <message>")
	}

	timeoutSecs := cmd.Int("timeout")
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	client, err := wsclient.Dial(ctx, cmd.String("gateway"))
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	var onEvent func(wsprotocol.Frame)
	if cmd.Bool("verbose") {
		onEvent = func(f wsprotocol.Frame) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", f.Event, f.Payload)
		}
	}

	user := os.Getenv("USER")
	res, err := client.Ask(wsprotocol.SendMessageParams{
		ChatID:   cmd.Int64("chat"),
		Content:  message,
		Username: user,
	}, onEvent)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout waiting for response")
		}
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(os.Stdout, res.Text)
	return nil
}
