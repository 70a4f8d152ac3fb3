package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// CommitLocks serializes graph commits per sync unit.
type CommitLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCommitLocks creates an empty lock set.
func NewCommitLocks() *CommitLocks {
	return &CommitLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the commit lock of a unit and returns its release func.
func (l *CommitLocks) Lock(unitID string) func() {
	l.mu.Lock()
	m, ok := l.locks[unitID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[unitID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Materializer turns fetched items into records, relations and permission
// edges and commits them in one transaction per batch.
type Materializer struct {
	store    driven.GraphStore
	resolver *Resolver
	outbox   *Outbox
	locks    *CommitLocks
	workers  int
	newID    func() string
	now      func() time.Time
}

// NewMaterializer creates a materializer.
func NewMaterializer(
	store driven.GraphStore,
	resolver *Resolver,
	outbox *Outbox,
	locks *CommitLocks,
	settings domain.EngineSettings,
) *Materializer {
	return &Materializer{
		store:    store,
		resolver: resolver,
		outbox:   outbox,
		locks:    locks,
		workers:  settings.Normalize().BuildWorkers,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// itemPlan is the in-memory result of building one item.
type itemPlan struct {
	records     []domain.Record
	relations   []domain.Relation
	permissions map[string][]domain.PermissionEdge
	events      []domain.RecordEvent
	unchanged   int
}

// Materialize processes one batch of items for scope.
//
// Phases run in order: collect identifiers, bulk resolve, build in memory
// without store access, commit under the unit's commit lock. A commit
// failure rolls back the whole batch and wraps domain.ErrTransaction.
func (m *Materializer) Materialize(ctx context.Context, unitID string, scope domain.SyncScope, items []domain.ExternalItem) (*domain.BatchResult, error) {
	log := logger.Default().With("unit", unitID, "scope", scope.String())
	result := &domain.BatchResult{}

	// Phase 1: collect.
	valid := make([]domain.ExternalItem, 0, len(items))
	index := make(map[string]int, len(items))
	var ids []string
	var refs []domain.PrincipalRef
	for i := range items {
		item := items[i]
		if err := item.Validate(); err != nil {
			result.Malformed++
			log.Warn("skipping malformed item", "external_id", item.ExternalID, logger.ErrAttr(err))
			continue
		}
		if item.UpdatedAt.After(result.Watermark) {
			result.Watermark = item.UpdatedAt
		}
		if j, dup := index[item.ExternalID]; dup {
			if item.UpdatedAt.After(valid[j].UpdatedAt) {
				valid[j] = item
			}
			continue
		}
		index[item.ExternalID] = len(valid)
		valid = append(valid, item)
	}
	for _, item := range valid {
		ids = append(ids, item.ExternalID, item.ParentExternalID, item.SiblingExternalID)
		for _, g := range item.Grants {
			refs = append(refs, g.Principal)
		}
		for _, c := range item.Children {
			ids = append(ids, c.ExternalID)
			for _, g := range c.Grants {
				refs = append(refs, g.Principal)
			}
		}
	}
	if len(valid) == 0 {
		return result, nil
	}

	// Phase 2: bulk resolve.
	res, err := m.resolver.Resolve(ctx, scope.Connector, ids, refs)
	if err != nil {
		return nil, goerr.Wrap(err, "resolve batch", goerr.V("scope", scope.String()), goerr.V("items", len(valid)))
	}

	// Phase 3: build. Local ids of new records are assigned up front so that
	// items can reference parents created in the same batch.
	localIDs := make(map[string]string, len(valid))
	for id, rec := range res.Records {
		localIDs[id] = rec.ID
	}
	for _, item := range valid {
		if _, ok := localIDs[item.ExternalID]; !ok {
			localIDs[item.ExternalID] = m.newID()
		}
		for _, c := range item.Children {
			if _, ok := localIDs[c.ExternalID]; !ok {
				localIDs[c.ExternalID] = m.newID()
			}
		}
	}

	plans := make([]itemPlan, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	now := m.now()
	for i := range valid {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plans[i] = m.build(scope.Connector, &valid[i], res, localIDs, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		records   []domain.Record
		relations []domain.Relation
		perms     = map[string][]domain.PermissionEdge{}
		events    []domain.RecordEvent
	)
	for _, p := range plans {
		records = append(records, p.records...)
		relations = append(relations, p.relations...)
		for recID, edges := range p.permissions {
			perms[recID] = edges
		}
		events = append(events, p.events...)
		result.Unchanged += p.unchanged
	}

	if len(records) == 0 && len(relations) == 0 && len(perms) == 0 {
		log.Debug("batch unchanged", "items", len(valid))
		return result, nil
	}

	// Phase 4: commit.
	if err := m.commit(ctx, unitID, records, relations, perms, events); err != nil {
		return nil, goerr.Wrap(err, "commit batch",
			goerr.V("unit", unitID), goerr.V("scope", scope.String()), goerr.V("records", len(records)))
	}

	result.RecordsWritten = len(records)
	result.RelationsWritten = len(relations)
	for _, edges := range perms {
		result.PermissionsWritten += len(edges)
	}
	result.Events = events

	m.outbox.Deliver(ctx, events)
	log.Debug("batch committed",
		"records", result.RecordsWritten,
		"relations", result.RelationsWritten,
		"permissions", result.PermissionsWritten,
		"unchanged", result.Unchanged)
	return result, nil
}

// build constructs the writes of one item from the resolved maps only.
func (m *Materializer) build(connector string, item *domain.ExternalItem, res *Resolution, localIDs map[string]string, now time.Time) itemPlan {
	plan := itemPlan{permissions: map[string][]domain.PermissionEdge{}}
	recID := localIDs[item.ExternalID]
	existing, found := res.Records[item.ExternalID]

	if found && sameRevision(existing, item.Revision, item.UpdatedAt) {
		plan.unchanged++
	} else {
		rec := domain.Record{
			ID:                 recID,
			Connector:          connector,
			ExternalID:         item.ExternalID,
			ExternalRevisionID: item.Revision,
			RecordType:         item.Type,
			ParentID:           localIDs[item.ParentExternalID],
			GroupID:            item.GroupID,
			Title:              item.Title,
			SourceCreatedAt:    item.CreatedAt,
			SourceUpdatedAt:    item.UpdatedAt,
			IsDeleted:          item.Deleted,
		}
		plan.records = append(plan.records, rec)
		plan.permissions[recID] = edgesFor(recID, item.Grants, res.Principals)
		if sib := localIDs[item.SiblingExternalID]; item.SiblingExternalID != "" && sib != "" && sib != recID {
			plan.relations = append(plan.relations, domain.Relation{FromID: recID, ToID: sib, Type: domain.RelationSibling})
		}
		plan.events = append(plan.events, m.event(rec, found, now))
	}

	// Children are processed whether or not the parent changed.
	for i := range item.Children {
		c := &item.Children[i]
		childID := localIDs[c.ExternalID]
		prev, ok := res.Records[c.ExternalID]
		if ok && sameRevision(prev, c.Revision, c.UpdatedAt) {
			plan.unchanged++
			continue
		}
		updated := c.UpdatedAt
		if updated.IsZero() {
			updated = item.UpdatedAt
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = updated
		}
		rec := domain.Record{
			ID:                 childID,
			Connector:          connector,
			ExternalID:         c.ExternalID,
			ExternalRevisionID: c.Revision,
			RecordType:         string(c.Kind),
			ParentID:           recID,
			GroupID:            item.GroupID,
			Title:              c.Title,
			SourceCreatedAt:    created,
			SourceUpdatedAt:    updated,
		}
		plan.records = append(plan.records, rec)
		plan.relations = append(plan.relations, domain.Relation{FromID: childID, ToID: recID, Type: domain.RelationForChild(c.Kind)})
		grants := c.Grants
		if len(grants) == 0 {
			grants = item.Grants
		}
		plan.permissions[childID] = edgesFor(childID, grants, res.Principals)
		plan.events = append(plan.events, m.event(rec, ok, now))
	}
	return plan
}

func (m *Materializer) event(rec domain.Record, existed bool, now time.Time) domain.RecordEvent {
	kind := domain.EventRecordCreated
	if existed {
		kind = domain.EventRecordUpdated
	}
	return domain.RecordEvent{
		ID:         m.newID(),
		Kind:       kind,
		RecordID:   rec.ID,
		Connector:  rec.Connector,
		ExternalID: rec.ExternalID,
		Revision:   rec.ExternalRevisionID,
		At:         now,
	}
}

// sameRevision reports whether the stored record already reflects the source.
// Without a revision marker the update time decides.
func sameRevision(rec domain.Record, revision string, updated time.Time) bool {
	if revision != "" {
		return rec.ExternalRevisionID == revision
	}
	return rec.ExternalRevisionID == "" && rec.SourceUpdatedAt.Equal(updated)
}

// edgesFor maps grants to edges, keeping the strongest permission per principal.
func edgesFor(recordID string, grants []domain.Grant, principals map[string]domain.Principal) []domain.PermissionEdge {
	best := map[string]domain.PermissionType{}
	var order []string
	for _, g := range grants {
		p, ok := principals[g.Principal.NormalizedKey()]
		if !ok {
			continue
		}
		t := g.Type
		if t == "" {
			t = domain.PermissionReader
		}
		cur, seen := best[p.ID]
		if !seen {
			order = append(order, p.ID)
		}
		if !seen || permissionRank(t) > permissionRank(cur) {
			best[p.ID] = t
		}
	}
	edges := make([]domain.PermissionEdge, 0, len(order))
	for _, pid := range order {
		edges = append(edges, domain.PermissionEdge{RecordID: recordID, PrincipalID: pid, Type: best[pid]})
	}
	return edges
}

func permissionRank(t domain.PermissionType) int {
	switch t {
	case domain.PermissionOwner:
		return 4
	case domain.PermissionWriter:
		return 3
	case domain.PermissionCommenter:
		return 2
	default:
		return 1
	}
}

// commit writes one batch in a single transaction under the unit's commit lock.
func (m *Materializer) commit(
	ctx context.Context,
	unitID string,
	records []domain.Record,
	relations []domain.Relation,
	perms map[string][]domain.PermissionEdge,
	events []domain.RecordEvent,
) (err error) {
	unlock := m.locks.Lock(unitID)
	defer unlock()

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrTransaction, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("%w: %w", domain.ErrTransaction, err)
		}
	}()

	if len(records) > 0 {
		if err = tx.UpsertRecords(ctx, records); err != nil {
			return err
		}
	}
	if len(relations) > 0 {
		if err = tx.CreateRelations(ctx, relations); err != nil {
			return err
		}
	}
	for recID, edges := range perms {
		if err = tx.ReplacePermissions(ctx, recID, edges); err != nil {
			return err
		}
	}
	if len(events) > 0 {
		if err = tx.EnqueueEvents(ctx, events); err != nil {
			return err
		}
	}
	return tx.Commit()
}
