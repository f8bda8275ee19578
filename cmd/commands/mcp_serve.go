package commands

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	taskmcp "github.com/dohr-michael/lazytasks/internal/mcp"
	"github.com/dohr-michael/lazytasks/internal/store"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients.
var Version = "dev"

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp-serve",
		Usage:  "Expose the task store as an MCP server (stdio)",
		Action: runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP stdio transport
	var level slog.LevelVar
	setupLogging(cmd, &level, slog.LevelWarn)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Debug("starting MCP server", "database", cfg.Database.Path)

	server := taskmcp.NewMCPServer(db, Version)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
