package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/logging"
	"github.com/khanglvm/tool-hub-search/internal/mcp"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
)

// NewServeCmd creates the 'serve' command for running the MCP server.
func NewServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the tool-hub-search MCP server using stdio transport.

On start every configured MCP server is spawned once to list its tools, and
all tool descriptions are indexed. The server then exposes 4 meta-tools:
  • hub_list    - List indexed tools by server
  • hub_search  - Retrieve the most relevant tools for a request
  • hub_execute - Call a tool by id (server:tool)
  • hub_help    - Show a tool's input schema

Child servers stay in a bounded pool and are respawned on demand.`,
		Example: `  # Run directly
  tool-hub-search serve

  # Expose Prometheus metrics while serving
  tool-hub-search serve --metrics-addr :9464

  # Add to Claude Code
  claude mcp add tool-hub -- tool-hub-search serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadOrNewConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runServe(cmd.Context(), cfg, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	return cmd
}

// runServe indexes the catalog and serves MCP over stdio until stdin closes
// or a SIGINT/SIGTERM/SIGQUIT arrives.
func runServe(ctx context.Context, cfg *config.Config, metricsAddr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	logger := logging.WithComponent("serve")

	var m *metrics.Metrics
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		shutdown := m.StartServer(metricsAddr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	h, err := newHub(ctx, cfg, hubOptions{metrics: m})
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Warn("error during shutdown", "error", err)
		}
	}()

	if h.store != nil {
		if err := h.store.Cleanup(cfg.Settings.Storage.Retention()); err != nil {
			logger.Warn("history cleanup failed", "error", err)
		}
	}

	if len(cfg.Servers) == 0 {
		logger.Warn("no servers configured; run 'tool-hub-search add' to register MCP servers")
	}
	start := time.Now()
	n, err := h.catalog.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to index tools: %w", err)
	}
	logger.Info("catalog indexed",
		slog.Int("tools", n),
		slog.Int("servers", len(cfg.EnabledServers())),
		slog.String("engine", cfg.Settings.Retrieval.Engine),
		slog.Duration("took", time.Since(start)),
	)

	server := mcp.NewServer(h.catalog,
		mcp.WithStorage(h.store),
		mcp.WithMetrics(m),
		mcp.WithDefaultTopK(cfg.Settings.Retrieval.TopK),
		mcp.WithBackend(cfg.Settings.Retrieval.Engine),
	)

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
