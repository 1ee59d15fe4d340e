package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"qforge/internal/experience"
	"qforge/internal/logging"
	mcpserver "qforge/internal/mcp"
	"qforge/internal/schema"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveFlags struct {
	dbPath string
	outDir string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio for agent integration",
	Long: `Starts an MCP server over stdin/stdout. The connected agent drives the
review protocol directly: review_report opens an audit session, and approved
reports block on the agent's logic-audit narrative before persisting.

The server monitors for parent process death. When the client disconnects or
restarts, the server self-terminates to prevent zombie processes.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.dbPath, "db", experience.DefaultDBPath, "Experience DB path")
	f.StringVar(&serveFlags.outDir, "out", ".qforge/reviews", "Review report output directory")
}

func runServe(cmd *cobra.Command, _ []string) error {
	reg, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	store, err := experience.Open(serveFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open experience store: %w", err)
	}
	defer store.Close()

	srv := mcpserver.NewServer(reg, store, serveFlags.outDir)
	defer srv.Shutdown()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchStdin(ctx, cancel)

	logging.New("mcp").Info("starting qforge MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
