package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [unit-id]",
	Short: "Show the state of sync units",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := services(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	unitIDs := args
	if len(unitIDs) == 0 {
		if unitIDs, err = allUnitIDs(ctx, s); err != nil {
			return err
		}
		if len(unitIDs) == 0 {
			cmd.Println("No units configured.")
			return nil
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tSTATUS\tSTARTED\tPAGES\tRECORDS\tUNCHANGED\tERROR")
	for _, id := range unitIDs {
		st, err := s.Sync.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("unit %s: %w", id, err)
		}
		started := "-"
		if !st.StartedAt.IsZero() {
			started = st.StartedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			st.UnitID, st.Status, started, st.Progress.Pages, st.Progress.RecordsWritten,
			st.Progress.Unchanged, st.LastError)
	}
	return w.Flush()
}
