package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// Ensure Controller implements the interface.
var _ driving.SyncController = (*Controller)(nil)

// run is one execution of a unit's run loop.
type run struct {
	stop   atomic.Bool
	done   chan struct{}
	cancel context.CancelFunc
}

// Controller owns the lifecycle of sync units. State transitions are
// serialized by a single mutex and persisted before they take effect; each
// unit has at most one run loop executing.
type Controller struct {
	units        driven.SyncUnitStore
	states       driven.SyncStateStore
	checkpoints  driven.CheckpointStore
	factory      driven.ConnectorFactory
	runner       *Runner
	materializer *Materializer

	mu   sync.Mutex
	runs map[string]*run
	base context.Context
	now  func() time.Time
}

// NewController creates a controller. Runs execute on a context detached
// from the caller of Start or Resume; use Shutdown to stop them.
func NewController(
	units driven.SyncUnitStore,
	states driven.SyncStateStore,
	checkpoints driven.CheckpointStore,
	factory driven.ConnectorFactory,
	runner *Runner,
	materializer *Materializer,
) *Controller {
	return &Controller{
		units:        units,
		states:       states,
		checkpoints:  checkpoints,
		factory:      factory,
		runner:       runner,
		materializer: materializer,
		runs:         make(map[string]*run),
		base:         context.Background(),
		now:          time.Now,
	}
}

// Start launches a run of the unit.
func (c *Controller) Start(ctx context.Context, unitID string) error {
	unit, err := c.units.Get(ctx, unitID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load(ctx, unitID)
	if err != nil {
		return err
	}
	next, err := domain.Transition(state.Status, domain.EventStart)
	if err != nil {
		return err
	}

	now := c.now()
	state.Status = next
	state.LastError = ""
	state.StartedAt = now
	state.UpdatedAt = now
	state.Progress = domain.Progress{}
	if err := c.states.Save(ctx, *state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	c.launch(*unit, domain.Progress{})
	return nil
}

// Pause asks the run loop to stop after the batch in flight.
func (c *Controller) Pause(ctx context.Context, unitID string) error {
	if _, err := c.units.Get(ctx, unitID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load(ctx, unitID)
	if err != nil {
		return err
	}
	next, err := domain.Transition(state.Status, domain.EventPause)
	if err != nil {
		return err
	}
	state.Status = next
	state.UpdatedAt = c.now()
	if err := c.states.Save(ctx, *state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if r := c.runs[unitID]; r != nil {
		r.stop.Store(true)
	}
	logger.Default().Info("sync pause requested", "unit", unitID)
	return nil
}

// Resume relaunches a paused unit. It waits for the paused run to exit
// first, so no batch is processed twice.
func (c *Controller) Resume(ctx context.Context, unitID string) error {
	unit, err := c.units.Get(ctx, unitID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	state, err := c.load(ctx, unitID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if _, err := domain.Transition(state.Status, domain.EventResume); err != nil {
		c.mu.Unlock()
		return err
	}
	prev := c.runs[unitID]
	c.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have resumed while we waited.
	state, err = c.load(ctx, unitID)
	if err != nil {
		return err
	}
	next, err := domain.Transition(state.Status, domain.EventResume)
	if err != nil {
		return err
	}
	state.Status = next
	state.UpdatedAt = c.now()
	if err := c.states.Save(ctx, *state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	c.launch(*unit, state.Progress)
	return nil
}

// Status returns the state of a unit. A unit that never ran is NOT_STARTED.
func (c *Controller) Status(ctx context.Context, unitID string) (*domain.UnitState, error) {
	if _, err := c.units.Get(ctx, unitID); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx, unitID)
}

// Wait blocks until the current run of a unit exits and returns the unit's state.
func (c *Controller) Wait(ctx context.Context, unitID string) (*domain.UnitState, error) {
	for {
		c.mu.Lock()
		r := c.runs[unitID]
		c.mu.Unlock()

		if r == nil {
			return c.Status(ctx, unitID)
		}
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		c.mu.Lock()
		same := c.runs[unitID] == r
		c.mu.Unlock()
		if same {
			return c.Status(ctx, unitID)
		}
	}
}

// Reindex re-fetches specific items and materializes them. Only items whose
// revision changed are written and republished.
func (c *Controller) Reindex(ctx context.Context, unitID string, scope domain.SyncScope, externalIDs []string) (*domain.BatchResult, error) {
	unit, err := c.units.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if scope.Connector != unit.Connector {
		return nil, fmt.Errorf("%w: scope %s does not belong to unit %s", domain.ErrInvalidInput, scope, unitID)
	}
	if len(externalIDs) == 0 {
		return &domain.BatchResult{}, nil
	}

	conn, err := openConnector(ctx, c.factory, *unit)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	items, err := conn.FetchItems(ctx, scope, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	res, err := c.materializer.Materialize(ctx, unitID, scope, items)
	if err != nil {
		return nil, err
	}
	logger.Default().Info("reindex complete",
		"unit", unitID,
		"scope", scope.String(),
		"requested", len(externalIDs),
		"fetched", len(items),
		"written", res.RecordsWritten)
	return res, nil
}

// Reset removes every checkpoint of a unit, including its permission audit
// position. Running and paused units are rejected.
func (c *Controller) Reset(ctx context.Context, unitID string) error {
	unit, err := c.units.Get(ctx, unitID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load(ctx, unitID)
	if err != nil {
		return err
	}
	if state.Status == domain.StatusInProgress || state.Status == domain.StatusPaused {
		return fmt.Errorf("%w: cannot reset unit %s while %s", domain.ErrInvalidTransition, unitID, state.Status)
	}

	conn, err := openConnector(ctx, c.factory, *unit)
	if err != nil {
		return err
	}
	defer conn.Close()

	scopes, err := conn.Scopes(ctx)
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}
	scopes = append(scopes, domain.PermissionAuditScope(unit.Connector, unit.ID))
	for _, s := range scopes {
		if err := c.checkpoints.Reset(ctx, s); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("reset %s: %w", s, err)
		}
	}
	logger.Default().Info("checkpoints reset", "unit", unitID, "scopes", len(scopes))
	return nil
}

// Shutdown pauses every running unit and waits for the runs to exit after
// their batch in flight. Runs still active when ctx ends are cancelled.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	active := make([]*run, 0, len(c.runs))
	for unitID, r := range c.runs {
		if state, err := c.load(ctx, unitID); err == nil && state.Status == domain.StatusInProgress {
			state.Status = domain.StatusPaused
			state.UpdatedAt = c.now()
			if err := c.states.Save(ctx, *state); err != nil {
				logger.Default().Warn("save state", "unit", unitID, logger.ErrAttr(err))
			}
		}
		r.stop.Store(true)
		active = append(active, r)
	}
	c.mu.Unlock()

	for _, r := range active {
		select {
		case <-r.done:
		case <-ctx.Done():
			for _, r := range active {
				r.cancel()
			}
			return ctx.Err()
		}
	}
	return nil
}

// Recover marks units left IN_PROGRESS by a previous process as PAUSED,
// so they resume from their last committed checkpoints. Units running in
// this process are untouched. It returns the recovered unit ids.
func (c *Controller) Recover(ctx context.Context) ([]string, error) {
	states, err := c.states.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var recovered []string
	for _, st := range states {
		if st.Status != domain.StatusInProgress || c.runs[st.UnitID] != nil {
			continue
		}
		st.Status = domain.StatusPaused
		st.UpdatedAt = c.now()
		if err := c.states.Save(ctx, st); err != nil {
			return recovered, fmt.Errorf("save state: %w", err)
		}
		recovered = append(recovered, st.UnitID)
		logger.Default().Warn("recovered interrupted run", "unit", st.UnitID)
	}
	return recovered, nil
}

// launch starts the run loop of unit. c.mu must be held.
func (c *Controller) launch(unit domain.SyncUnit, base domain.Progress) {
	ctx, cancel := context.WithCancel(c.base)
	r := &run{done: make(chan struct{}), cancel: cancel}
	c.runs[unit.ID] = r

	go func() {
		defer cancel()
		progress, err := c.runner.Run(ctx, unit, RunHooks{
			Base:     base,
			Stopped:  r.stop.Load,
			Progress: func(p domain.Progress) { c.saveProgress(r, unit.ID, p) },
		})
		c.finish(r, unit.ID, progress, err)
	}()
}

// finish applies the outcome of a run. A run that was paused leaves the
// state alone apart from its progress.
func (c *Controller) finish(r *run, unitID string, progress domain.Progress, runErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(r.done)

	if c.runs[unitID] != r {
		return
	}
	delete(c.runs, unitID)

	ctx := context.WithoutCancel(c.base)
	log := logger.Default().With("unit", unitID)
	state, err := c.load(ctx, unitID)
	if err != nil {
		log.Error("load state", logger.ErrAttr(err))
		return
	}
	state.Progress = progress
	state.UpdatedAt = c.now()

	if state.Status == domain.StatusInProgress {
		ev := domain.EventSucceed
		if runErr != nil {
			ev = domain.EventFail
			state.LastError = runErr.Error()
			log.Error("sync failed", logger.ErrAttr(runErr))
		}
		if next, err := domain.Transition(state.Status, ev); err == nil {
			state.Status = next
		}
	} else if runErr != nil {
		log.Warn("paused run exited with error", logger.ErrAttr(runErr))
	}

	if err := c.states.Save(ctx, *state); err != nil {
		log.Error("save state", logger.ErrAttr(err))
	}
}

func (c *Controller) saveProgress(r *run, unitID string, p domain.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs[unitID] != r {
		return
	}
	ctx := context.WithoutCancel(c.base)
	state, err := c.load(ctx, unitID)
	if err != nil {
		return
	}
	state.Progress = p
	state.UpdatedAt = c.now()
	if err := c.states.Save(ctx, *state); err != nil {
		logger.Default().Warn("save progress", "unit", unitID, logger.ErrAttr(err))
	}
}

// load returns the stored state or the initial one. c.mu must be held.
func (c *Controller) load(ctx context.Context, unitID string) (*domain.UnitState, error) {
	state, err := c.states.Get(ctx, unitID)
	if errors.Is(err, domain.ErrNotFound) {
		s := domain.NewUnitState(unitID)
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return state, nil
}
