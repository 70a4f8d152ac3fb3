package mcp

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// mockSyncController is a mock implementation of driving.SyncController.
type mockSyncController struct {
	states  map[string]*domain.UnitState
	calls   []string
	err     error
	reindex *domain.BatchResult

	reindexScope domain.SyncScope
	reindexIDs   []string
}

func newMockSyncController(unitIDs ...string) *mockSyncController {
	m := &mockSyncController{states: map[string]*domain.UnitState{}}
	for _, id := range unitIDs {
		m.states[id] = &domain.UnitState{UnitID: id, Status: domain.StatusNotStarted}
	}
	return m
}

func (m *mockSyncController) apply(op, unitID string, to domain.SyncStatus) error {
	m.calls = append(m.calls, op+":"+unitID)
	if m.err != nil {
		return m.err
	}
	st, ok := m.states[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnitNotFound, unitID)
	}
	st.Status = to
	return nil
}

func (m *mockSyncController) Start(_ context.Context, unitID string) error {
	return m.apply("start", unitID, domain.StatusInProgress)
}

func (m *mockSyncController) Pause(_ context.Context, unitID string) error {
	return m.apply("pause", unitID, domain.StatusPaused)
}

func (m *mockSyncController) Resume(_ context.Context, unitID string) error {
	return m.apply("resume", unitID, domain.StatusInProgress)
}

func (m *mockSyncController) Status(_ context.Context, unitID string) (*domain.UnitState, error) {
	st, ok := m.states[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnitNotFound, unitID)
	}
	cp := *st
	return &cp, nil
}

func (m *mockSyncController) Reindex(
	_ context.Context,
	unitID string,
	scope domain.SyncScope,
	externalIDs []string,
) (*domain.BatchResult, error) {
	m.calls = append(m.calls, "reindex:"+unitID)
	m.reindexScope = scope
	m.reindexIDs = externalIDs
	if m.err != nil {
		return nil, m.err
	}
	return m.reindex, nil
}

func (m *mockSyncController) Wait(ctx context.Context, unitID string) (*domain.UnitState, error) {
	return m.Status(ctx, unitID)
}

func (m *mockSyncController) Reset(_ context.Context, unitID string) error {
	m.calls = append(m.calls, "reset:"+unitID)
	return m.err
}

// mockUnits is a mock UnitLister.
type mockUnits struct {
	units []domain.SyncUnit
	err   error
}

func (m *mockUnits) List(_ context.Context) ([]domain.SyncUnit, error) {
	return m.units, m.err
}

// mockCatalog is a mock ConnectorCatalog.
type mockCatalog []domain.ConnectorType

func (m mockCatalog) List() []domain.ConnectorType {
	return m
}
