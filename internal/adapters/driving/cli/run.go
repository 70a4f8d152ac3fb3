package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// pollInterval is how often run refreshes progress.
var pollInterval = 500 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run [unit-id...]",
	Short: "Sync units until their sources are exhausted",
	Long: `Runs a sync of the given units, or of every configured unit, and waits
for it to finish. Paused units resume from their last committed batch.

Press Ctrl-C to pause: the batch in flight is committed and the next run
resumes after it. Use --full to drop the checkpoints and resync everything.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("full", false, "reset checkpoints before starting")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := services(cmd)
	if err != nil {
		return err
	}
	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return fmt.Errorf("getting full flag: %w", err)
	}

	recoverRuns(cmd, s)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	logger.Section("run")
	started := make([]string, 0, len(unitIDs))
	for _, id := range unitIDs {
		logger.Debug("launching %s (full=%t)", id, full)
		if err := launchUnit(ctx, s.Sync, id, full); err != nil {
			return fmt.Errorf("unit %s: %w", id, err)
		}
		started = append(started, id)
		cmd.Printf("Syncing %s...\n", id)
	}

	interrupted := monitor(ctx, cmd.OutOrStdout(), s.Sync, started)

	// Wait on a fresh context: the signal context is already done after Ctrl-C.
	waitCtx := context.WithoutCancel(cmd.Context())
	if interrupted {
		cmd.Println("\nPausing after the batch in flight...")
		for _, id := range started {
			if err := s.Sync.Pause(waitCtx, id); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
				return fmt.Errorf("pausing %s: %w", id, err)
			}
		}
	}

	var failed []string
	for _, id := range started {
		state, err := s.Sync.Wait(waitCtx, id)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", id, err)
		}
		cmd.Printf("%s: %s\n", id, summary(state))
		if state.Status == domain.StatusFailed {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("sync failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

// launchUnit starts a unit, resuming it when a previous run was paused.
func launchUnit(ctx context.Context, ctrl driving.SyncController, unitID string, full bool) error {
	state, err := ctrl.Status(ctx, unitID)
	if err != nil {
		return err
	}
	if state.Status == domain.StatusPaused && !full {
		return ctrl.Resume(ctx, unitID)
	}
	if full {
		if err := ctrl.Reset(ctx, unitID); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return ctrl.Start(ctx, unitID)
}

// monitor polls the units until none is in progress. It returns true when
// ctx ended first.
func monitor(ctx context.Context, out io.Writer, ctrl driving.SyncController, unitIDs []string) bool {
	tty := isTerminal(out)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		running := 0
		var total domain.Progress
		for _, id := range unitIDs {
			state, err := ctrl.Status(ctx, id)
			if err != nil {
				continue
			}
			if state.Status == domain.StatusInProgress {
				running++
			}
			total.Pages += state.Progress.Pages
			total.RecordsWritten += state.Progress.RecordsWritten
			total.Unchanged += state.Progress.Unchanged
		}
		if tty {
			fmt.Fprintf(out, "\r%d running, %d pages, %d records written, %d unchanged",
				running, total.Pages, total.RecordsWritten, total.Unchanged)
		}
		if running == 0 {
			if tty {
				fmt.Fprintln(out)
			}
			return false
		}

		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
		}
	}
}

func summary(st *domain.UnitState) string {
	p := st.Progress
	s := fmt.Sprintf("%s (%d scopes, %d pages, %d records, %d relations, %d permissions, %d unchanged",
		st.Status, p.ScopesDone, p.Pages, p.RecordsWritten, p.RelationsWritten, p.PermissionsWritten, p.Unchanged)
	if p.Malformed > 0 {
		s += fmt.Sprintf(", %d malformed", p.Malformed)
	}
	s += ")"
	if st.LastError != "" {
		s += ": " + st.LastError
	}
	return s
}

func allUnitIDs(ctx context.Context, s *Services) ([]string, error) {
	if s.Units == nil {
		return nil, errors.New("unit store not configured")
	}
	units, err := s.Units.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
