package domain

import "time"

// Built-in scheduled tasks.
const (
	// TaskIDConnectorSync starts every configured unit that is not running.
	TaskIDConnectorSync = "connector-sync"

	// TaskIDOutboxFlush redelivers record events left in the outbox.
	TaskIDOutboxFlush = "outbox-flush"
)

// ScheduledTask is the persisted schedule of a recurring task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time

	// LastError is the error of the last run, empty after a success.
	LastError string
}

// Due reports whether the task should run at now.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && !now.Before(t.NextRun)
}

// Complete records the outcome of a run and schedules the next one an
// interval after it ended.
func (t *ScheduledTask) Complete(r *TaskResult) {
	t.LastRun = r.StartedAt
	t.NextRun = r.EndedAt.Add(t.Interval)
	if r.Success {
		t.LastError = ""
		t.LastSuccess = r.EndedAt
		return
	}
	t.LastError = r.Error
}

// TaskResult is one entry of a task's run history.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// Affected counts units started by a sync run or events delivered by a flush.
	Affected int
}

// SchedulerConfig enables the scheduler and its tasks.
type SchedulerConfig struct {
	Enabled     bool
	TaskConfigs map[string]TaskConfig
}

// TaskConfig configures one task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration of taskID, or a disabled zero
// value when it is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if !c.Enabled || c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig syncs hourly and flushes the outbox every five minutes.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDConnectorSync: {Enabled: true, Interval: time.Hour},
			TaskIDOutboxFlush:   {Enabled: true, Interval: 5 * time.Minute},
		},
	}
}
