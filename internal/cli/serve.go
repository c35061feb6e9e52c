package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/imyousuf/depgraph/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve repository analysis over HTTP",
		Long: `Start an HTTP server that analyzes repositories on request.

Endpoints:
  GET  /health               liveness check
  POST /extract_knowledge    {"repo_path": "..."} returns the dependency graph`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig("")
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			registry, err := newRegistry()
			if err != nil {
				return err
			}
			if !verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			srv := server.New(server.Config{
				Registry: registry,
				Discover: discoverOptions(cfg),
				Analyzer: analyzerOptions(cfg),
				Logger:   slog.Default(),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
			if err := srv.Run(ctx, addr); err != nil && ctx.Err() == nil {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8000)")

	return cmd
}

