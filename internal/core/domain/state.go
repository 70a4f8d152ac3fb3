package domain

import (
	"fmt"
	"time"
)

// SyncStatus is the lifecycle state of a sync unit.
type SyncStatus string

const (
	// StatusNotStarted is the initial state.
	StatusNotStarted SyncStatus = "NOT_STARTED"

	// StatusInProgress means a run loop is active.
	StatusInProgress SyncStatus = "IN_PROGRESS"

	// StatusPaused means the run loop was asked to stop between batches.
	StatusPaused SyncStatus = "PAUSED"

	// StatusCompleted means every scope was exhausted and the permission scan ran.
	StatusCompleted SyncStatus = "COMPLETED"

	// StatusFailed means the run loop stopped on an unhandled error.
	StatusFailed SyncStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPaused, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// SyncEvent drives a state transition.
type SyncEvent string

const (
	EventStart   SyncEvent = "start"
	EventPause   SyncEvent = "pause"
	EventResume  SyncEvent = "resume"
	EventFail    SyncEvent = "fail"
	EventSucceed SyncEvent = "succeed"
)

// transitions is the complete table of legal transitions.
// FAILED and COMPLETED only accept start, which re-enters IN_PROGRESS.
var transitions = map[SyncStatus]map[SyncEvent]SyncStatus{
	StatusNotStarted: {
		EventStart: StatusInProgress,
	},
	StatusInProgress: {
		EventPause:   StatusPaused,
		EventFail:    StatusFailed,
		EventSucceed: StatusCompleted,
	},
	StatusPaused: {
		EventResume: StatusInProgress,
	},
	StatusCompleted: {
		EventStart: StatusInProgress,
	},
	StatusFailed: {
		EventStart: StatusInProgress,
	},
}

// Transition returns the state reached from 'from' on event 'ev'.
// Returns ErrInvalidTransition when the table has no such edge.
func Transition(from SyncStatus, ev SyncEvent) (SyncStatus, error) {
	if from == "" {
		from = StatusNotStarted
	}
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}

// Progress counts work done by the current or last run.
type Progress struct {
	ScopesDone         int
	ScopesFailed       int
	Pages              int
	RecordsWritten     int
	RelationsWritten   int
	PermissionsWritten int
	Unchanged          int
	Malformed          int
}

// Add accumulates a batch result.
func (p *Progress) Add(r *BatchResult) {
	if r == nil {
		return
	}
	p.Pages++
	p.RecordsWritten += r.RecordsWritten
	p.RelationsWritten += r.RelationsWritten
	p.PermissionsWritten += r.PermissionsWritten
	p.Unchanged += r.Unchanged
	p.Malformed += r.Malformed
}

// UnitState is the persisted state of a sync unit.
type UnitState struct {
	// UnitID identifies the sync unit.
	UnitID string

	// Status is the lifecycle state.
	Status SyncStatus

	// LastError is the message of the error that moved the unit to FAILED.
	LastError string

	// StartedAt is when the current or last run started.
	StartedAt time.Time

	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time

	// Progress is the work done by the current or last run.
	Progress Progress
}

// NewUnitState returns the initial state of a unit.
func NewUnitState(unitID string) UnitState {
	return UnitState{UnitID: unitID, Status: StatusNotStarted}
}
