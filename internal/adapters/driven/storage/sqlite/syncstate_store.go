package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// Save stores or updates unit state.
func (s *syncStateStore) Save(ctx context.Context, state domain.UnitState) error {
	progressJSON, err := json.Marshal(state.Progress)
	if err != nil {
		return fmt.Errorf("marshalling progress: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO unit_states (unit_id, status, last_error, started_at, updated_at, progress)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(unit_id) DO UPDATE SET
			status = excluded.status,
			last_error = excluded.last_error,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			progress = excluded.progress
	`, state.UnitID, string(state.Status), nullString(state.LastError),
		formatNullableTime(state.StartedAt), formatNullableTime(state.UpdatedAt), string(progressJSON))
	if err != nil {
		return fmt.Errorf("saving unit state: %w", err)
	}
	return nil
}

// Get retrieves the state of a unit.
func (s *syncStateStore) Get(ctx context.Context, unitID string) (*domain.UnitState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT unit_id, status, last_error, started_at, updated_at, progress
		FROM unit_states WHERE unit_id = ?
	`, unitID)
	return scanUnitState(row)
}

// List returns the state of every unit that ran, ordered by unit ID.
func (s *syncStateStore) List(ctx context.Context) ([]domain.UnitState, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT unit_id, status, last_error, started_at, updated_at, progress
		FROM unit_states ORDER BY unit_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying unit states: %w", err)
	}
	defer rows.Close()

	var states []domain.UnitState //nolint:prealloc // size unknown from query
	for rows.Next() {
		st, err := scanUnitState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unit states: %w", err)
	}
	return states, nil
}

func scanUnitState(row rowScanner) (*domain.UnitState, error) {
	var st domain.UnitState
	var status, progress string
	var lastError, startedAt, updatedAt sql.NullString
	if err := row.Scan(&st.UnitID, &status, &lastError, &startedAt, &updatedAt, &progress); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning unit state: %w", err)
	}
	st.Status = domain.SyncStatus(status)
	st.LastError = lastError.String
	st.StartedAt = parseNullableTime(startedAt)
	st.UpdatedAt = parseNullableTime(updatedAt)
	if progress != "" {
		if err := json.Unmarshal([]byte(progress), &st.Progress); err != nil {
			return nil, fmt.Errorf("unmarshalling progress: %w", err)
		}
	}
	return &st, nil
}
