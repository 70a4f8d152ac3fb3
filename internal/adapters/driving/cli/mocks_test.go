package cli

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// fakeController is a SyncController whose runs finish as soon as they start.
type fakeController struct {
	mu     sync.Mutex
	states map[string]*domain.UnitState
	calls  []string

	// finish is the status a started unit ends in.
	finish  domain.SyncStatus
	lastErr string

	reindex      *domain.BatchResult
	reindexScope domain.SyncScope
	reindexIDs   []string
}

func newFakeController(unitIDs ...string) *fakeController {
	f := &fakeController{
		states: map[string]*domain.UnitState{},
		finish: domain.StatusCompleted,
	}
	for _, id := range unitIDs {
		f.states[id] = &domain.UnitState{UnitID: id, Status: domain.StatusNotStarted}
	}
	return f
}

func (f *fakeController) state(unitID string) (*domain.UnitState, error) {
	st, ok := f.states[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnitNotFound, unitID)
	}
	return st, nil
}

func (f *fakeController) run(op, unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+unitID)
	st, err := f.state(unitID)
	if err != nil {
		return err
	}
	st.Status = f.finish
	st.LastError = f.lastErr
	st.Progress = domain.Progress{ScopesDone: 1, Pages: 2, RecordsWritten: 10, Unchanged: 3}
	return nil
}

func (f *fakeController) Start(_ context.Context, unitID string) error {
	return f.run("start", unitID)
}

func (f *fakeController) Resume(_ context.Context, unitID string) error {
	return f.run("resume", unitID)
}

func (f *fakeController) Pause(_ context.Context, unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "pause:"+unitID)
	st, err := f.state(unitID)
	if err != nil {
		return err
	}
	if st.Status != domain.StatusInProgress {
		return domain.ErrInvalidTransition
	}
	st.Status = domain.StatusPaused
	return nil
}

func (f *fakeController) Status(_ context.Context, unitID string) (*domain.UnitState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.state(unitID)
	if err != nil {
		return nil, err
	}
	cp := *st
	return &cp, nil
}

func (f *fakeController) Wait(ctx context.Context, unitID string) (*domain.UnitState, error) {
	return f.Status(ctx, unitID)
}

func (f *fakeController) Reset(_ context.Context, unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "reset:"+unitID)
	_, err := f.state(unitID)
	return err
}

func (f *fakeController) Reindex(
	_ context.Context,
	unitID string,
	scope domain.SyncScope,
	externalIDs []string,
) (*domain.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "reindex:"+unitID)
	f.reindexScope = scope
	f.reindexIDs = externalIDs
	if f.reindex == nil {
		return &domain.BatchResult{}, nil
	}
	return f.reindex, nil
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeUnits lists a fixed set of units.
type fakeUnits []domain.SyncUnit

func (u fakeUnits) List(_ context.Context) ([]domain.SyncUnit, error) {
	return u, nil
}

// fakeCatalog lists a fixed set of connector types.
type fakeCatalog []domain.ConnectorType

func (c fakeCatalog) List() []domain.ConnectorType {
	return c
}

// fakeScheduler blocks in Start until its context ends.
type fakeScheduler struct {
	mu      sync.Mutex
	started bool
	stopped bool
}

func (s *fakeScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (s *fakeScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// execute runs the root command against s and returns its combined output.
func execute(t *testing.T, s *Services, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), s, args...)
}

func executeContext(t *testing.T, ctx context.Context, s *Services, args ...string) (string, error) {
	t.Helper()

	prev := svc
	svc = s
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		svc = prev
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

// resetFlags restores every flag to its default between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
