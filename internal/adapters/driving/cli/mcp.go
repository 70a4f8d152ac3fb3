package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-mirror/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Start the Model Context Protocol server over stdio using JSON-RPC.

The server exposes the start, pause, resume, status and reindex tools and
the units and connectors resources. Runs started through it stop when the
client disconnects; use serve for a long-lived process.

Client configuration:
  {
    "mcpServers": {
      "sercha-mirror": {
        "command": "/path/to/sercha-mirror",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	s, err := services(cmd)
	if err != nil {
		return err
	}
	server, err := newMCPServer(s)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	runErr := server.Run(ctx)
	if s.Shutdown != nil {
		if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func newMCPServer(s *Services) (*mcp.Server, error) {
	return mcp.NewServer(&mcp.Ports{
		Sync:       s.Sync,
		Units:      s.Units,
		Connectors: s.Connectors,
	})
}
