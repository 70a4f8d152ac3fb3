package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

const historyKeep = 100

// Scheduler manages background task execution.
// It starts every configured unit periodically and drains the event outbox.
type Scheduler struct {
	config     domain.SchedulerConfig
	store      driven.SchedulerStore
	units      driven.SyncUnitStore
	controller driving.SyncController
	outbox     *Outbox
	tick       time.Duration
	now        func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	units driven.SyncUnitStore,
	controller driving.SyncController,
	outbox *Outbox,
) *Scheduler {
	return &Scheduler{
		config:     config,
		store:      store,
		units:      units,
		controller: controller,
		outbox:     outbox,
		tick:       time.Minute,
		now:        time.Now,
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Default().Error("scheduler: initialise tasks", logger.ErrAttr(err))
	}

	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	tasks := []struct{ id, name string }{
		{domain.TaskIDConnectorSync, "Connector Sync"},
		{domain.TaskIDOutboxFlush, "Outbox Flush"},
	}
	for _, t := range tasks {
		cfg := s.config.GetTaskConfig(t.id)
		var err error
		if cfg.Enabled {
			err = s.ensureTask(ctx, t.id, t.name, cfg)
		} else {
			err = s.disableTask(ctx, t.id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// disableTask turns off a stored task that the configuration no longer enables.
func (s *Scheduler) disableTask(ctx context.Context, id string) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil || task == nil || !task.Enabled {
		return err
	}
	task.Enabled = false
	return s.store.SaveTask(ctx, task)
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		// New tasks run on the first tick.
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  s.now(),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = s.now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

func (s *Scheduler) run(ctx context.Context, stopCh chan struct{}) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Default().Error("scheduler: list tasks", logger.ErrAttr(err))
		return
	}

	now := s.now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.runTask(ctx, &tasks[i])
		}
	}
}

// runTask executes a single task.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := logger.Default().With("task", task.ID)

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: s.now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDConnectorSync:
			result.Affected, err = s.runConnectorSync(ctx)
		case domain.TaskIDOutboxFlush:
			result.Affected, err = s.outbox.Flush(ctx)
		default:
			log.Warn("scheduler: unknown task")
			return
		}

		result.EndedAt = s.now()
		result.Success = err == nil
		if err != nil {
			result.Error = err.Error()
			log.Error("scheduled task failed", logger.ErrAttr(err))
		}
		task.Complete(result)

		if err := s.store.SaveTask(ctx, task); err != nil {
			log.Error("scheduler: save task", logger.ErrAttr(err))
		}
		if err := s.store.RecordResult(ctx, result); err != nil {
			log.Error("scheduler: record result", logger.ErrAttr(err))
		}
		if err := s.store.PruneHistory(ctx, historyKeep); err != nil {
			log.Error("scheduler: prune history", logger.ErrAttr(err))
		}
	}()
}

// runConnectorSync starts every configured unit that is not already running.
// Returns the number of units started.
func (s *Scheduler) runConnectorSync(ctx context.Context) (int, error) {
	if s.controller == nil || s.units == nil {
		return 0, nil
	}
	units, err := s.units.List(ctx)
	if err != nil {
		return 0, err
	}

	started := 0
	var errs []error
	for _, u := range units {
		err := s.controller.Start(ctx, u.ID)
		switch {
		case err == nil:
			started++
		case errors.Is(err, domain.ErrInvalidTransition):
			logger.Default().Debug("unit busy, skipped", "unit", u.ID)
		default:
			errs = append(errs, err)
		}
	}
	return started, errors.Join(errs...)
}
