package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// RunHooks connect a run to its controller.
type RunHooks struct {
	// Base is the progress carried over from a paused run.
	Base domain.Progress

	// Stopped is polled after every committed batch. A true result ends the
	// run cleanly, leaving the checkpoints at the last committed batch.
	Stopped func() bool

	// Progress receives the cumulative progress after every batch.
	Progress func(domain.Progress)
}

func (h RunHooks) stopped() bool {
	return h.Stopped != nil && h.Stopped()
}

func (h RunHooks) report(p domain.Progress) {
	if h.Progress != nil {
		h.Progress(p)
	}
}

// Runner executes one sync run of a unit: every scope is paginated from
// its checkpoint, each page is materialized, and the checkpoint advances
// only after the page committed. A permission scan follows when every
// scope succeeded.
type Runner struct {
	factory      driven.ConnectorFactory
	checkpoints  driven.CheckpointStore
	paginator    *Paginator
	materializer *Materializer
	scanner      *PermissionScanner
	outbox       *Outbox
	settings     domain.EngineSettings
	now          func() time.Time
}

// NewRunner creates a runner. scanner may be nil to disable permission scans.
func NewRunner(
	factory driven.ConnectorFactory,
	checkpoints driven.CheckpointStore,
	paginator *Paginator,
	materializer *Materializer,
	scanner *PermissionScanner,
	outbox *Outbox,
	settings domain.EngineSettings,
) *Runner {
	return &Runner{
		factory:      factory,
		checkpoints:  checkpoints,
		paginator:    paginator,
		materializer: materializer,
		scanner:      scanner,
		outbox:       outbox,
		settings:     settings.Normalize(),
		now:          time.Now,
	}
}

// Run syncs every scope of unit. It returns the cumulative progress and nil
// when all scopes were exhausted or the run was stopped between batches.
//
// A scope whose batch commit fails is abandoned at its last committed
// checkpoint while the other scopes continue; the run then ends with an
// error wrapping domain.ErrTransaction and skips the permission scan.
// Configuration errors abort immediately.
func (r *Runner) Run(ctx context.Context, unit domain.SyncUnit, hooks RunHooks) (domain.Progress, error) {
	progress := hooks.Base
	log := logger.Default().With("unit", unit.ID, "connector", unit.Connector)

	if err := unit.Validate(); err != nil {
		return progress, err
	}

	if n, err := r.outbox.Flush(ctx); err != nil {
		log.Warn("outbox flush failed", logger.ErrAttr(err))
	} else if n > 0 {
		log.Info("delivered pending events", "events", n)
	}

	conn, err := openConnector(ctx, r.factory, unit)
	if err != nil {
		return progress, err
	}
	defer conn.Close()

	scopes, err := selectScopes(ctx, conn, unit)
	if err != nil {
		return progress, err
	}

	log.Info("sync started", "scopes", len(scopes))
	var failed []string
	for _, scope := range scopes {
		if hooks.stopped() {
			log.Info("sync paused")
			return progress, nil
		}

		stopped, err := r.syncScope(ctx, unit, conn, scope, &progress, hooks)
		switch {
		case err == nil:
			if stopped {
				log.Info("sync paused", "scope", scope.String())
				return progress, nil
			}
			progress.ScopesDone++
		case errors.Is(err, domain.ErrTransaction):
			failed = append(failed, scope.String())
			progress.ScopesFailed++
			log.Error("scope failed, continuing with remaining scopes", "scope", scope.String(), logger.ErrAttr(err))
		default:
			return progress, err
		}
		hooks.report(progress)
	}

	if len(failed) > 0 {
		return progress, fmt.Errorf("%w: scopes %s", domain.ErrTransaction, strings.Join(failed, ", "))
	}
	if hooks.stopped() {
		log.Info("sync paused before permission scan")
		return progress, nil
	}

	if err := r.scanPermissions(ctx, unit, conn, &progress); err != nil {
		return progress, err
	}
	hooks.report(progress)

	log.Info("sync complete",
		"scopes", progress.ScopesDone,
		"pages", progress.Pages,
		"records", progress.RecordsWritten,
		"unchanged", progress.Unchanged,
		"malformed", progress.Malformed)
	return progress, nil
}

// syncScope paginates one scope from its checkpoint. It reports true when
// the run was stopped before the scope was exhausted.
func (r *Runner) syncScope(
	ctx context.Context,
	unit domain.SyncUnit,
	conn driven.Connector,
	scope domain.SyncScope,
	progress *domain.Progress,
	hooks RunHooks,
) (bool, error) {
	log := logger.Default().With("unit", unit.ID, "scope", scope.String())

	cp, err := r.checkpoints.Get(ctx, scope)
	if errors.Is(err, domain.ErrNotFound) {
		cp = nil
	} else if err != nil {
		return false, goerr.Wrap(err, "get checkpoint", goerr.V("scope", scope.String()))
	}

	filters := domain.MergeWindow(unit.Window, cp)
	start := domain.PageStart{}
	if cp.Resumable() {
		start = domain.PageStart{Cursor: cp.Cursor, Offset: cp.Offset}
	}
	log.Debug("scope window",
		"origin", filters.Origin.String(),
		"modified_after", filters.ModifiedAfter,
		"modified_before", filters.ModifiedBefore,
		"resume", cp.Resumable())

	stopped, err := r.paginate(ctx, unit.ID, conn, scope, cp, start, filters, progress, hooks)
	if errors.Is(err, domain.ErrInvalidCursor) && cp.Resumable() {
		// The stored position expired; replay the interrupted query from its bound.
		log.Warn("stored cursor rejected, restarting pagination", logger.ErrAttr(err))
		return r.paginate(ctx, unit.ID, conn, scope, cp, domain.PageStart{}, filters, progress, hooks)
	}
	return stopped, err
}

func (r *Runner) paginate(
	ctx context.Context,
	unitID string,
	conn driven.Connector,
	scope domain.SyncScope,
	cp *domain.Checkpoint,
	start domain.PageStart,
	filters domain.Filters,
	progress *domain.Progress,
	hooks RunHooks,
) (bool, error) {
	current := cp
	for page, err := range r.paginator.Pages(ctx, conn, scope, start, filters) {
		if err != nil {
			return false, err
		}

		res, err := r.materializer.Materialize(ctx, unitID, scope, page.Items)
		if err != nil {
			return false, err
		}
		progress.Add(res)
		hooks.report(*progress)

		next := current.Advance(scope, page.Next, page.Filters.ModifiedAfter, res.Watermark)
		if !sameCheckpoint(current, next) {
			next.UpdatedAt = r.now()
			switch err := r.checkpoints.Save(ctx, next); {
			case err == nil:
				current = &next
			case errors.Is(err, domain.ErrStaleCheckpoint):
				logger.Default().Warn("checkpoint advanced by another run", "scope", scope.String())
				if stored, gerr := r.checkpoints.Get(ctx, scope); gerr == nil {
					current = stored
				}
			default:
				return false, goerr.Wrap(err, "save checkpoint", goerr.V("scope", scope.String()))
			}
		}

		if !page.Last && hooks.stopped() {
			return true, nil
		}
	}
	return false, nil
}

// scanPermissions runs the permission diff pass when the connector offers an audit feed.
func (r *Runner) scanPermissions(ctx context.Context, unit domain.SyncUnit, conn driven.Connector, progress *domain.Progress) error {
	if r.scanner == nil || !r.settings.PermissionScan || !conn.Capabilities().SupportsPermissionAudit {
		return nil
	}
	src, ok := conn.(driven.PermissionSource)
	if !ok {
		return nil
	}
	res, err := r.scanner.Scan(ctx, unit.ID, conn.Type(), src)
	if err != nil {
		return goerr.Wrap(err, "permission scan", goerr.V("unit", unit.ID))
	}
	progress.PermissionsWritten += res.PermissionsWritten
	return nil
}

// openConnector creates the connector of a unit, reporting unknown types
// and missing credentials as configuration errors.
func openConnector(ctx context.Context, factory driven.ConnectorFactory, unit domain.SyncUnit) (driven.Connector, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: connector factory not configured", domain.ErrConfiguration)
	}
	conn, err := factory.Create(ctx, unit)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedType) || errors.Is(err, domain.ErrAuthRequired) ||
			errors.Is(err, domain.ErrConfiguration) {
			return nil, fmt.Errorf("%w: unit %s: %w", domain.ErrConfiguration, unit.ID, err)
		}
		return nil, fmt.Errorf("create connector: %w", err)
	}
	return conn, nil
}

// selectScopes returns the connector's scopes restricted to those the unit names.
func selectScopes(ctx context.Context, conn driven.Connector, unit domain.SyncUnit) ([]domain.SyncScope, error) {
	all, err := conn.Scopes(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "list scopes", goerr.V("unit", unit.ID))
	}
	if len(unit.Scopes) == 0 {
		return all, nil
	}

	byName := make(map[string]domain.SyncScope, len(all))
	for _, s := range all {
		byName[s.String()] = s
	}
	out := make([]domain.SyncScope, 0, len(unit.Scopes))
	for _, name := range unit.Scopes {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: unit %s: unknown scope %q", domain.ErrConfiguration, unit.ID, name)
		}
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func sameCheckpoint(prev *domain.Checkpoint, next domain.Checkpoint) bool {
	if prev == nil {
		return !next.Resumable() && next.Watermark.IsZero()
	}
	if prev.Cursor != next.Cursor || prev.Offset != next.Offset || !prev.Watermark.Equal(next.Watermark) {
		return false
	}
	switch {
	case prev.Since == nil && next.Since == nil:
		return true
	case prev.Since == nil || next.Since == nil:
		return false
	default:
		return prev.Since.Equal(*next.Since)
	}
}
