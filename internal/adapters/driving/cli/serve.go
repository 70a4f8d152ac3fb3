package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// shutdownTimeout bounds how long serve waits for batches in flight.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the MCP server over HTTP",
	Long: `Runs scheduled syncs of every configured unit, flushes the event outbox
and serves the MCP tools over streamable HTTP. Changes to the configuration
file are picked up without a restart.

On SIGINT or SIGTERM running units are paused after their batch in flight.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8420", "MCP HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	s, err := services(cmd)
	if err != nil {
		return err
	}
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("getting addr flag: %w", err)
	}
	server, err := newMCPServer(s)
	if err != nil {
		return err
	}

	recoverRuns(cmd, s)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Section("serve")
	log := logger.Default()
	g, gctx := errgroup.WithContext(ctx)

	if s.Scheduler != nil {
		g.Go(func() error {
			return s.Scheduler.Start(gctx)
		})
	}
	if s.WatchConfig != nil {
		g.Go(func() error {
			return s.WatchConfig(gctx, func() {
				log.Info("configuration reloaded")
			})
		})
	}
	g.Go(func() error {
		log.Info("serving mcp", "addr", addr)
		return server.RunHTTP(gctx, addr)
	})

	runErr := g.Wait()

	if s.Scheduler != nil {
		if err := s.Scheduler.Stop(); err != nil {
			log.Warn("stopping scheduler", logger.ErrAttr(err))
		}
	}
	if s.Shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutting down", logger.ErrAttr(err))
		}
	}

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}
