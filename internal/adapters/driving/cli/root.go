// Package cli implements the sercha-mirror command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-mirror/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=v1.2.3".
var version = "dev"

// Services are the application services the commands drive.
type Services struct {
	Sync       driving.SyncController
	Units      mcp.UnitLister
	Connectors mcp.ConnectorCatalog
	Scheduler  driving.Scheduler

	// WatchConfig reloads the configuration on change until ctx ends.
	WatchConfig func(ctx context.Context, onChange func()) error

	// Recover pauses units left in progress by a process that exited
	// without shutting down. Only commands that own the runs call it.
	Recover func(ctx context.Context) ([]string, error)

	// Shutdown pauses running units and waits for their batch in flight.
	Shutdown func(ctx context.Context) error

	// Close releases stores and connections.
	Close func() error
}

// Bootstrap builds the services from a configuration file path.
// An empty path selects the default location.
type Bootstrap func(ctx context.Context, configPath string) (*Services, error)

var (
	bootstrap Bootstrap
	svc       *Services

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sercha-mirror",
	Short: "Incrementally mirror connector data into a local graph",
	Long: `sercha-mirror pulls items from Gmail, GitHub and Notion, normalizes them
into records, relations and permission edges, and commits them batch by
batch with resumable checkpoints.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		logger.SetColor(term.IsTerminal(int(os.Stderr.Fd())))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default ~/.sercha-mirror/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetBootstrap sets the function building the services on first use.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices injects ready services, bypassing the bootstrap.
func SetServices(s *Services) {
	svc = s
}

// SetVersion overrides the reported version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and releases the services afterwards.
func Execute() error {
	err := rootCmd.Execute()
	if svc != nil && svc.Close != nil {
		if cerr := svc.Close(); cerr != nil {
			logger.Default().Warn("closing services", logger.ErrAttr(cerr))
		}
	}
	return err
}

// recoverRuns pauses runs interrupted by a previous process.
func recoverRuns(cmd *cobra.Command, s *Services) {
	if s.Recover == nil {
		return
	}
	if _, err := s.Recover(cmd.Context()); err != nil {
		logger.Default().Warn("recovering interrupted runs", logger.ErrAttr(err))
	}
}

// services returns the services, building them on first use.
func services(cmd *cobra.Command) (*Services, error) {
	if svc != nil {
		return svc, nil
	}
	if bootstrap == nil {
		return nil, errors.New("services not configured")
	}
	s, err := bootstrap(cmd.Context(), configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	svc = s
	return svc, nil
}
