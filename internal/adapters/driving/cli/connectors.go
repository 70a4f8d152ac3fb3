package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "List the available connector types",
	RunE:  runConnectors,
}

func init() {
	rootCmd.AddCommand(connectorsCmd)
}

func runConnectors(cmd *cobra.Command, _ []string) error {
	s, err := services(cmd)
	if err != nil {
		return err
	}
	if s.Connectors == nil {
		return errors.New("connector registry not configured")
	}

	for _, c := range s.Connectors.List() {
		cmd.Printf("%s - %s\n", c.ID, c.Description)
		for _, k := range c.ConfigKeys {
			req := ""
			if k.Required {
				req = " (required)"
			}
			cmd.Printf("    %s%s: %s\n", k.Key, req, k.Description)
		}
	}
	return nil
}
