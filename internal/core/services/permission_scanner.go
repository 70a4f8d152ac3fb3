package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// PermissionScanner refreshes the permissions of already mirrored records
// from a connector's audit feed. It never creates records or principals:
// identifiers the primary sync did not mirror are skipped.
type PermissionScanner struct {
	store       driven.GraphStore
	resolver    *Resolver
	checkpoints driven.CheckpointStore
	outbox      *Outbox
	locks       *CommitLocks
	matchers    map[string]AuditMatcher
	fallback    AuditMatcher
	now         func() time.Time
}

// NewPermissionScanner creates a scanner using DefaultContentPermissionMatcher
// for connectors without a dedicated matcher.
func NewPermissionScanner(
	store driven.GraphStore,
	resolver *Resolver,
	checkpoints driven.CheckpointStore,
	outbox *Outbox,
	locks *CommitLocks,
) *PermissionScanner {
	return &PermissionScanner{
		store:       store,
		resolver:    resolver,
		checkpoints: checkpoints,
		outbox:      outbox,
		locks:       locks,
		matchers:    map[string]AuditMatcher{},
		fallback:    DefaultContentPermissionMatcher(),
		now:         time.Now,
	}
}

// WithMatcher sets the matcher used for a connector type.
func (s *PermissionScanner) WithMatcher(connectorType string, m AuditMatcher) *PermissionScanner {
	s.matchers[connectorType] = m
	return s
}

func (s *PermissionScanner) matcher(connectorType string) AuditMatcher {
	if m, ok := s.matchers[connectorType]; ok {
		return m
	}
	return s.fallback
}

// Scan processes the audit window since the scanner's last run.
// The first run only records the current time.
func (s *PermissionScanner) Scan(ctx context.Context, unitID, connector string, src driven.PermissionSource) (*domain.ScanResult, error) {
	log := logger.Default().With("unit", unitID, "connector", connector)
	scope := domain.PermissionAuditScope(connector, unitID)
	until := s.now()

	cp, err := s.checkpoints.Get(ctx, scope)
	if errors.Is(err, domain.ErrNotFound) {
		if err := s.checkpoints.Save(ctx, domain.Checkpoint{Scope: scope, Watermark: until}); err != nil {
			return nil, fmt.Errorf("init audit checkpoint: %w", err)
		}
		log.Info("permission audit initialized", "since", until)
		return &domain.ScanResult{Initialized: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit checkpoint: %w", err)
	}

	events, err := src.AuditEvents(ctx, cp.Watermark, until)
	if err != nil {
		return nil, goerr.Wrap(err, "fetch audit events", goerr.V("since", cp.Watermark), goerr.V("until", until))
	}

	matcher := s.matcher(connector)
	seen := map[string]bool{}
	var affected []string
	for _, ev := range events {
		for _, id := range matcher.Match(ev) {
			if !seen[id] {
				seen[id] = true
				affected = append(affected, id)
			}
		}
	}
	sort.Strings(affected)
	result := &domain.ScanResult{Affected: affected}

	if len(affected) > 0 {
		if err := s.refresh(ctx, unitID, connector, src, result); err != nil {
			return nil, err
		}
	}

	if err := s.checkpoints.Save(ctx, domain.Checkpoint{Scope: scope, Watermark: until}); err != nil {
		if !errors.Is(err, domain.ErrStaleCheckpoint) {
			return nil, fmt.Errorf("save audit checkpoint: %w", err)
		}
		log.Warn("audit checkpoint already advanced by another run")
	}

	log.Info("permission audit done",
		"events", len(events),
		"affected", len(affected),
		"refreshed", result.Refreshed,
		"skipped", result.Skipped)
	return result, nil
}

// refresh overwrites the permissions of the affected records that exist locally.
func (s *PermissionScanner) refresh(ctx context.Context, unitID, connector string, src driven.PermissionSource, result *domain.ScanResult) error {
	existing, err := s.resolver.ResolveExisting(ctx, connector, result.Affected, nil)
	if err != nil {
		return goerr.Wrap(err, "lookup affected records", goerr.V("count", len(result.Affected)))
	}
	result.Skipped = len(existing.Missing)
	if len(existing.Records) == 0 {
		return nil
	}

	grants := map[string][]domain.Grant{}
	var refs []domain.PrincipalRef
	for _, id := range result.Affected {
		if _, ok := existing.Records[id]; !ok {
			continue
		}
		gs, err := src.FetchPermissions(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			result.Skipped++
			continue
		}
		if err != nil {
			return goerr.Wrap(err, "fetch permissions", goerr.V("external_id", id))
		}
		grants[id] = gs
		for _, g := range gs {
			refs = append(refs, g.Principal)
		}
	}
	if len(grants) == 0 {
		return nil
	}

	principals, err := s.resolver.ResolveExisting(ctx, connector, nil, refs)
	if err != nil {
		return goerr.Wrap(err, "lookup principals", goerr.V("count", len(refs)))
	}

	now := s.now()
	perms := map[string][]domain.PermissionEdge{}
	var events []domain.RecordEvent
	for id, gs := range grants {
		rec := existing.Records[id]
		edges := edgesFor(rec.ID, gs, principals.Principals)
		perms[rec.ID] = edges
		result.PermissionsWritten += len(edges)
		events = append(events, domain.RecordEvent{
			ID:         uuid.NewString(),
			Kind:       domain.EventPermissions,
			RecordID:   rec.ID,
			Connector:  connector,
			ExternalID: rec.ExternalID,
			Revision:   rec.ExternalRevisionID,
			At:         now,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ExternalID < events[j].ExternalID })

	if err := s.commit(ctx, unitID, perms, events); err != nil {
		return goerr.Wrap(err, "commit permissions", goerr.V("unit", unitID), goerr.V("records", len(perms)))
	}
	result.Refreshed = len(perms)
	s.outbox.Deliver(ctx, events)
	return nil
}

func (s *PermissionScanner) commit(ctx context.Context, unitID string, perms map[string][]domain.PermissionEdge, events []domain.RecordEvent) (err error) {
	unlock := s.locks.Lock(unitID)
	defer unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrTransaction, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("%w: %w", domain.ErrTransaction, err)
		}
	}()

	for recID, edges := range perms {
		if err = tx.ReplacePermissions(ctx, recID, edges); err != nil {
			return err
		}
	}
	if err = tx.EnqueueEvents(ctx, events); err != nil {
		return err
	}
	return tx.Commit()
}
