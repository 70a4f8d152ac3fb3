package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	assert.Len(t, config.TaskConfigs, 2)

	syncCfg := config.TaskConfigs[TaskIDConnectorSync]
	assert.True(t, syncCfg.Enabled)
	assert.Equal(t, 1*time.Hour, syncCfg.Interval)

	flushCfg := config.TaskConfigs[TaskIDOutboxFlush]
	assert.True(t, flushCfg.Enabled)
	assert.Equal(t, 5*time.Minute, flushCfg.Interval)
}

func TestSchedulerConfig_GetTaskConfig_NilMap(t *testing.T) {
	config := SchedulerConfig{Enabled: true}

	cfg := config.GetTaskConfig("any-task")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, time.Duration(0), cfg.Interval)
}

func TestScheduledTask_Due(t *testing.T) {
	now := time.Now()

	assert.True(t, (&ScheduledTask{Enabled: true, NextRun: now.Add(-time.Minute)}).Due(now))
	assert.True(t, (&ScheduledTask{Enabled: true, NextRun: now}).Due(now))
	assert.False(t, (&ScheduledTask{Enabled: true, NextRun: now.Add(time.Minute)}).Due(now))
	assert.False(t, (&ScheduledTask{NextRun: now.Add(-time.Minute)}).Due(now))
}

func TestSchedulerConfig_GetTaskConfig_MasterSwitch(t *testing.T) {
	config := DefaultSchedulerConfig()
	config.Enabled = false

	assert.False(t, config.GetTaskConfig(TaskIDConnectorSync).Enabled)
}

func TestScheduledTask_Complete(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)
	task := &ScheduledTask{Interval: time.Hour, LastError: "previous failure"}

	task.Complete(&TaskResult{StartedAt: start, EndedAt: end, Success: true})

	assert.Equal(t, start, task.LastRun)
	assert.Equal(t, end.Add(time.Hour), task.NextRun)
	assert.Equal(t, end, task.LastSuccess)
	assert.Empty(t, task.LastError)

	task.Complete(&TaskResult{StartedAt: end, EndedAt: end.Add(time.Minute), Error: "token expired"})

	assert.Equal(t, "token expired", task.LastError)
	assert.Equal(t, end, task.LastSuccess)
}
