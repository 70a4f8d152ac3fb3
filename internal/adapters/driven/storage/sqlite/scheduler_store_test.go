package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

func newSchedulerStore(t *testing.T) driven.SchedulerStore {
	t.Helper()
	store, cleanup := setupTestStore(t)
	t.Cleanup(cleanup)
	return store.SchedulerStore()
}

// recordRuns stores n successful runs of taskID, one minute apart, where run
// i affected i+1 units.
func recordRuns(t *testing.T, s driven.SchedulerStore, taskID string, n int) {
	t.Helper()
	base := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		start := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.RecordResult(context.Background(), &domain.TaskResult{
			TaskID:    taskID,
			StartedAt: start,
			EndedAt:   start.Add(20 * time.Second),
			Success:   true,
			Affected:  i + 1,
		}))
	}
}

func TestSchedulerStore_TaskRoundTrip(t *testing.T) {
	s := newSchedulerStore(t)
	ctx := context.Background()

	end := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	task := &domain.ScheduledTask{
		ID:       domain.TaskIDConnectorSync,
		Name:     "Connector Sync",
		Interval: 45 * time.Minute,
		Enabled:  true,
	}
	task.Complete(&domain.TaskResult{StartedAt: end.Add(-time.Minute), EndedAt: end, Success: true})
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, domain.TaskIDConnectorSync)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Connector Sync", got.Name)
	assert.Equal(t, 45*time.Minute, got.Interval)
	assert.True(t, got.Enabled)
	assert.True(t, got.LastRun.Equal(end.Add(-time.Minute)))
	assert.True(t, got.NextRun.Equal(end.Add(45*time.Minute)))
	assert.True(t, got.LastSuccess.Equal(end))
	assert.Empty(t, got.LastError)
}

func TestSchedulerStore_SaveTaskOverwrites(t *testing.T) {
	s := newSchedulerStore(t)
	ctx := context.Background()

	task := &domain.ScheduledTask{ID: domain.TaskIDOutboxFlush, Name: "Outbox Flush", Interval: 5 * time.Minute, Enabled: true}
	require.NoError(t, s.SaveTask(ctx, task))

	task.Interval = 10 * time.Minute
	task.Enabled = false
	task.LastError = "publish: broker unavailable"
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, domain.TaskIDOutboxFlush)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, got.Interval)
	assert.False(t, got.Enabled)
	assert.Equal(t, "publish: broker unavailable", got.LastError)

	all, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSchedulerStore_UnknownTask(t *testing.T) {
	s := newSchedulerStore(t)

	task, err := s.GetTask(context.Background(), "reindex-nightly")

	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSchedulerStore_NewTaskKeepsZeroTimes(t *testing.T) {
	s := newSchedulerStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTask(ctx, &domain.ScheduledTask{ID: "fresh", Interval: time.Hour, Enabled: true}))

	got, err := s.GetTask(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, got.LastRun.IsZero())
	assert.True(t, got.NextRun.IsZero())
	assert.True(t, got.LastSuccess.IsZero())
	assert.True(t, got.Due(time.Now()))
}

func TestSchedulerStore_NilArguments(t *testing.T) {
	s := newSchedulerStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SaveTask(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, s.RecordResult(ctx, nil), domain.ErrInvalidInput)
}

func TestSchedulerStore_HistoryMostRecentFirst(t *testing.T) {
	s := newSchedulerStore(t)
	ctx := context.Background()

	recordRuns(t, s, domain.TaskIDConnectorSync, 2)
	failedAt := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordResult(ctx, &domain.TaskResult{
		TaskID:    domain.TaskIDConnectorSync,
		StartedAt: failedAt,
		EndedAt:   failedAt.Add(time.Second),
		Error:     "unit work-mail: token expired",
	}))
	recordRuns(t, s, domain.TaskIDOutboxFlush, 1)

	history, err := s.GetTaskHistory(ctx, domain.TaskIDConnectorSync, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.False(t, history[0].Success)
	assert.Equal(t, "unit work-mail: token expired", history[0].Error)
	assert.Equal(t, 2, history[1].Affected)
	assert.Equal(t, 1, history[2].Affected)

	limited, err := s.GetTaskHistory(ctx, domain.TaskIDConnectorSync, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.GetTaskHistory(ctx, "never-ran", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchedulerStore_PruneKeepsNewestPerTask(t *testing.T) {
	s := newSchedulerStore(t)
	ctx := context.Background()

	recordRuns(t, s, domain.TaskIDConnectorSync, 10)
	recordRuns(t, s, domain.TaskIDOutboxFlush, 2)

	require.NoError(t, s.PruneHistory(ctx, 3))

	syncs, err := s.GetTaskHistory(ctx, domain.TaskIDConnectorSync, 100)
	require.NoError(t, err)
	require.Len(t, syncs, 3)
	assert.Equal(t, []int{10, 9, 8}, []int{syncs[0].Affected, syncs[1].Affected, syncs[2].Affected})

	flushes, err := s.GetTaskHistory(ctx, domain.TaskIDOutboxFlush, 100)
	require.NoError(t, err)
	assert.Len(t, flushes, 2)
}
