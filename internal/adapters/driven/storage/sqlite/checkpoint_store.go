package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// ==================== Checkpoint Store ====================

// checkpointStore implements driven.CheckpointStore.
type checkpointStore struct {
	store *Store
}

var _ driven.CheckpointStore = (*checkpointStore)(nil)

const checkpointColumns = `connector, entity_type, scope_key, cursor, page_offset, since, watermark, updated_at`

// Get retrieves the checkpoint of a scope.
func (s *checkpointStore) Get(ctx context.Context, scope domain.SyncScope) (*domain.Checkpoint, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE scope = ?`, scope.String())
	return scanCheckpoint(row)
}

// Save stores a checkpoint. The conditional upsert rejects a watermark older
// than the stored one in the same statement, so concurrent writers cannot
// move a scope backwards.
func (s *checkpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	if cp.Scope.IsZero() {
		return fmt.Errorf("%w: checkpoint without scope", domain.ErrInvalidInput)
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	var since any
	if cp.Since != nil {
		since = formatNullableTime(*cp.Since)
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO checkpoints (scope, `+checkpointColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			cursor = excluded.cursor,
			page_offset = excluded.page_offset,
			since = excluded.since,
			watermark = excluded.watermark,
			updated_at = excluded.updated_at
		WHERE excluded.watermark >= checkpoints.watermark
	`, cp.Scope.String(), cp.Scope.Connector, cp.Scope.EntityType, cp.Scope.Key,
		cp.Cursor, cp.Offset, since, watermarkNanos(cp.Watermark), formatNullableTime(updated))
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrStaleCheckpoint, cp.Scope)
	}
	return nil
}

// Reset removes the checkpoint of a scope.
func (s *checkpointStore) Reset(ctx context.Context, scope domain.SyncScope) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE scope = ?", scope.String()); err != nil {
		return fmt.Errorf("resetting checkpoint: %w", err)
	}
	return nil
}

// List returns every checkpoint of a connector ordered by scope.
func (s *checkpointStore) List(ctx context.Context, connector string) ([]domain.Checkpoint, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+checkpointColumns+` FROM checkpoints
		WHERE ? = '' OR connector = ?
		ORDER BY scope
	`, connector, connector)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.Checkpoint //nolint:prealloc // size unknown from query
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}
	return out, nil
}

func scanCheckpoint(row rowScanner) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var since, updated sql.NullString
	var watermark int64
	if err := row.Scan(&cp.Scope.Connector, &cp.Scope.EntityType, &cp.Scope.Key,
		&cp.Cursor, &cp.Offset, &since, &watermark, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning checkpoint: %w", err)
	}
	if t := parseNullableTime(since); !t.IsZero() {
		cp.Since = &t
	}
	if watermark != 0 {
		cp.Watermark = time.Unix(0, watermark).UTC()
	}
	cp.UpdatedAt = parseNullableTime(updated)
	return &cp, nil
}

// watermarkNanos stores the zero time as 0 so unset watermarks sort first.
func watermarkNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
