package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lazytasks/internal/config"
	"github.com/dohr-michael/lazytasks/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show Lazy Tasks server status",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*time.Minute)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Server: ALIVE (PID %d, uptime %s)\n", hb.PID, hb.Uptime)
				fmt.Printf("  addr:     %s\n", hb.Addr)
				fmt.Printf("  database: %s\n", hb.Database)
				fmt.Printf("  telegram: %t\n", hb.Telegram)
				if hb.Dropped > 0 {
					fmt.Printf("  dropped events: %d\n", hb.Dropped)
				}
			case heartbeat.StatusStale:
				fmt.Printf("Server: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Server: NOT RUNNING")
			}

			return nil
		},
	}
}
