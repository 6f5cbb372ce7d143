package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedlens/internal/mcpserver"
	"github.com/ppiankov/feedlens/internal/metrics"
	"github.com/ppiankov/feedlens/internal/pipeline"
	"github.com/ppiankov/feedlens/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	Long: `Serve exposes one orchestrator over HTTP:
  POST /api/query    {"text": "...", "top_k": 5}
  POST /api/reset
  GET  /api/state
  GET  /api/stages
  GET  /api/events   server-sent RunState stream
  GET  /health
  GET  /metrics      prometheus metrics

Example:
  feedlens serve --addr :8088
  FEEDLENS_PROVIDER_KIND=generative feedlens serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the query tools over MCP (stdio)",
	Long: `Mcp runs a Model Context Protocol server on stdin/stdout with the tools
submit_query, get_state, reset and list_stages.

Example:
  feedlens mcp --no-pace`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: config server.addr)")
	addRunFlags(serveCmd)
	addRunFlags(mcpCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rec := metrics.New()
	orch := a.orchestrator(pipeline.WithRecorder(rec))
	defer orch.Close()

	fmt.Fprintf(os.Stderr, "feedlens listening on %s (provider: %s)\n", cfg.Server.Addr, orch.ProviderName())
	if err := server.New(orch, rec).Run(ctx, cfg.Server.Addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orch := a.orchestrator()
	defer orch.Close()

	if err := mcpserver.New(orch, Version).Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
