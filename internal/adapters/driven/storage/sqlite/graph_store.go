package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// ==================== Graph Store ====================

// graphStore implements driven.GraphStore.
type graphStore struct {
	store *Store
}

var _ driven.GraphStore = (*graphStore)(nil)

const recordColumns = `id, connector, external_id, external_revision_id, record_type, parent_id, group_id,
	title, source_created_at, source_updated_at, is_deleted`

// FindRecordsByExternalID returns the existing records of a connector keyed by external id.
func (g *graphStore) FindRecordsByExternalID(ctx context.Context, connector string, externalIDs []string) (map[string]domain.Record, error) {
	out := make(map[string]domain.Record, len(externalIDs))
	for _, ids := range chunks(externalIDs, maxParams) {
		args := make([]any, 0, len(ids)+1)
		args = append(args, connector)
		for _, id := range ids {
			args = append(args, id)
		}

		rows, err := g.store.db.QueryContext(ctx, `
			SELECT `+recordColumns+`
			FROM records WHERE connector = ? AND external_id IN (`+placeholders(len(ids))+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("querying records: %w", err)
		}
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[r.ExternalID] = *r
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterating records: %w", err)
		}
	}
	return out, nil
}

// FindPrincipals returns the existing principals keyed by normalized key.
func (g *graphStore) FindPrincipals(ctx context.Context, refs []domain.PrincipalRef) (map[string]domain.Principal, error) {
	keys := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		k := ref.NormalizedKey()
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}

	out := make(map[string]domain.Principal, len(keys))
	for _, batch := range chunks(keys, maxParams) {
		args := make([]any, len(batch))
		for i, k := range batch {
			args[i] = k
		}
		rows, err := g.store.db.QueryContext(ctx, `
			SELECT id, kind, key, display_name FROM principals WHERE key IN (`+placeholders(len(batch))+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("querying principals: %w", err)
		}
		for rows.Next() {
			var p domain.Principal
			if err := rows.Scan(&p.ID, &p.Kind, &p.Key, &p.DisplayName); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning principal: %w", err)
			}
			out[p.Key] = p
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterating principals: %w", err)
		}
	}
	return out, nil
}

// CreatePrincipals inserts principals. Keys that already exist are left
// untouched and reported through a *driven.DuplicateKeyError.
func (g *graphStore) CreatePrincipals(ctx context.Context, principals []domain.Principal) error {
	if len(principals) == 0 {
		return nil
	}

	inserted := make(map[string]bool, len(principals))
	for start := 0; start < len(principals); start += maxParams / 4 {
		end := min(start+maxParams/4, len(principals))
		batch := principals[start:end]

		args := make([]any, 0, len(batch)*4)
		values := make([]string, 0, len(batch))
		for _, p := range batch {
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, p.ID, string(p.Kind), p.Key, p.DisplayName)
		}

		rows, err := g.store.db.QueryContext(ctx, `
			INSERT INTO principals (id, kind, key, display_name)
			VALUES `+strings.Join(values, ", ")+`
			ON CONFLICT(key) DO NOTHING
			RETURNING key
		`, args...)
		if err != nil {
			return fmt.Errorf("inserting principals: %w", err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return fmt.Errorf("scanning inserted principal: %w", err)
			}
			inserted[key] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterating inserted principals: %w", err)
		}
	}

	var dup []string
	for _, p := range principals {
		if !inserted[p.Key] {
			dup = append(dup, p.Key)
		}
	}
	if len(dup) > 0 {
		return &driven.DuplicateKeyError{Keys: dup}
	}
	return nil
}

// Begin starts a write transaction.
func (g *graphStore) Begin(ctx context.Context) (driven.GraphTx, error) {
	tx, err := g.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", domain.ErrTransaction, err)
	}
	return &graphTx{tx: tx}, nil
}

// PendingEvents returns unacknowledged outbox events in commit order.
// A limit of zero or less returns every pending event.
func (g *graphStore) PendingEvents(ctx context.Context, limit int) ([]domain.RecordEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := g.store.db.QueryContext(ctx, `
		SELECT id, kind, record_id, connector, external_id, revision, at
		FROM outbox ORDER BY seq LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outbox: %w", err)
	}
	defer rows.Close()

	var events []domain.RecordEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		var ev domain.RecordEvent
		var at sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.RecordID, &ev.Connector, &ev.ExternalID, &ev.Revision, &at); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.At = parseNullableTime(at)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox: %w", err)
	}
	return events, nil
}

// AckEvents removes delivered events from the outbox.
func (g *graphStore) AckEvents(ctx context.Context, eventIDs []string) error {
	for _, ids := range chunks(eventIDs, maxParams) {
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		if _, err := g.store.db.ExecContext(ctx,
			`DELETE FROM outbox WHERE id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
			return fmt.Errorf("acking events: %w", err)
		}
	}
	return nil
}

// ==================== Graph Transaction ====================

// graphTx implements driven.GraphTx on a database transaction.
type graphTx struct {
	tx *sql.Tx
}

var _ driven.GraphTx = (*graphTx)(nil)

// UpsertRecords inserts or updates records keyed by (connector, external id).
// The local id of an existing record is kept.
func (t *graphTx) UpsertRecords(ctx context.Context, records []domain.Record) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connector, external_id) DO UPDATE SET
			external_revision_id = excluded.external_revision_id,
			record_type = excluded.record_type,
			parent_id = excluded.parent_id,
			group_id = excluded.group_id,
			title = excluded.title,
			source_created_at = excluded.source_created_at,
			source_updated_at = excluded.source_updated_at,
			is_deleted = excluded.is_deleted
	`)
	if err != nil {
		return fmt.Errorf("preparing record upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Connector, r.ExternalID, r.ExternalRevisionID, r.RecordType,
			nullString(r.ParentID), nullString(r.GroupID), r.Title,
			formatNullableTime(r.SourceCreatedAt), formatNullableTime(r.SourceUpdatedAt),
			boolToInt(r.IsDeleted)); err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ExternalID, err)
		}
	}
	return nil
}

// CreateRelations inserts edges, ignoring existing ones.
func (t *graphTx) CreateRelations(ctx context.Context, relations []domain.Relation) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO relations (from_id, to_id, type) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("preparing relation insert: %w", err)
	}
	defer stmt.Close()

	for _, rel := range relations {
		if _, err := stmt.ExecContext(ctx, rel.FromID, rel.ToID, string(rel.Type)); err != nil {
			return fmt.Errorf("inserting relation: %w", err)
		}
	}
	return nil
}

// ReplacePermissions replaces every permission edge of a record.
func (t *graphTx) ReplacePermissions(ctx context.Context, recordID string, edges []domain.PermissionEdge) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM permissions WHERE record_id = ?", recordID); err != nil {
		return fmt.Errorf("clearing permissions: %w", err)
	}
	for _, e := range edges {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO permissions (record_id, principal_id, type) VALUES (?, ?, ?)
			ON CONFLICT(record_id, principal_id) DO UPDATE SET type = excluded.type
		`, recordID, e.PrincipalID, string(e.Type)); err != nil {
			return fmt.Errorf("inserting permission: %w", err)
		}
	}
	return nil
}

// EnqueueEvents stores record events in the outbox.
func (t *graphTx) EnqueueEvents(ctx context.Context, events []domain.RecordEvent) error {
	for _, ev := range events {
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO outbox (id, kind, record_id, connector, external_id, revision, at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, ev.ID, string(ev.Kind), ev.RecordID, ev.Connector, ev.ExternalID, ev.Revision,
			formatNullableTime(at)); err != nil {
			return fmt.Errorf("enqueueing event: %w", err)
		}
	}
	return nil
}

// Commit makes the transaction's writes durable.
func (t *graphTx) Commit() error {
	return t.tx.Commit()
}

// Rollback discards the transaction. Safe to call after Commit.
func (t *graphTx) Rollback() error {
	return ignoreTxDone(t.tx.Rollback())
}

// scanRecord scans a record row.
func scanRecord(row rowScanner) (*domain.Record, error) {
	var r domain.Record
	var parentID, groupID, createdAt, updatedAt sql.NullString
	var deleted int
	if err := row.Scan(&r.ID, &r.Connector, &r.ExternalID, &r.ExternalRevisionID, &r.RecordType,
		&parentID, &groupID, &r.Title, &createdAt, &updatedAt, &deleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	r.ParentID = parentID.String
	r.GroupID = groupID.String
	r.SourceCreatedAt = parseNullableTime(createdAt)
	r.SourceUpdatedAt = parseNullableTime(updatedAt)
	r.IsDeleted = deleted == 1
	return &r, nil
}
