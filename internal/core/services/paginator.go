package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// Paginator streams the pages of a scope from a connector.
type Paginator struct {
	settings   domain.EngineSettings
	newBackOff func() backoff.BackOff
}

// NewPaginator creates a paginator.
func NewPaginator(settings domain.EngineSettings) *Paginator {
	settings = settings.Normalize()
	return &Paginator{
		settings: settings,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = settings.RetryInitialInterval
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// BatchSize returns the page size requested from conn.
func (p *Paginator) BatchSize(conn driven.Connector) int {
	size := p.settings.BatchSize
	if limit := conn.Capabilities().MaxPageSize; limit > 0 && size > limit {
		size = limit
	}
	return size
}

// Pages yields the pages of scope starting at start until the collection is
// exhausted. An empty window yields nothing. A fetch error is yielded once and
// ends the sequence.
func (p *Paginator) Pages(
	ctx context.Context,
	conn driven.Connector,
	scope domain.SyncScope,
	start domain.PageStart,
	filters domain.Filters,
) iter.Seq2[domain.Page, error] {
	return func(yield func(domain.Page, error) bool) {
		log := logger.Default().With("scope", scope.String())
		if filters.Empty() {
			log.Warn("empty modification window, nothing to fetch",
				"modified_after", *filters.ModifiedAfter,
				"modified_before", *filters.ModifiedBefore,
				"origin", filters.Origin.String())
			return
		}

		caps := conn.Capabilities()
		batch := p.BatchSize(conn)
		pos := start

		for {
			if err := ctx.Err(); err != nil {
				yield(domain.Page{}, err)
				return
			}

			raw, err := p.fetch(ctx, conn, scope, domain.PageRequest{PageStart: pos, Limit: batch, Filters: filters})
			if err != nil {
				yield(domain.Page{}, err)
				return
			}

			page := domain.Page{Start: pos, Filters: filters, Items: raw.Items}
			if !caps.SupportsTimeFilter {
				page.Items = filterItems(raw.Items, filters)
			}

			switch caps.PageMode {
			case domain.PageModeOffset:
				next := pos.Offset + batch
				page.Last = raw.Covered() < batch || (raw.Total > 0 && next >= raw.Total)
				if !page.Last {
					page.Next = domain.PageStart{Offset: next}
				}
			default:
				if raw.NextCursor != "" && raw.NextCursor == pos.Cursor {
					yield(domain.Page{}, goerr.Wrap(domain.ErrInvalidCursor, "cursor did not advance",
						goerr.V("scope", scope.String()), goerr.V("cursor", pos.Cursor)))
					return
				}
				page.Last = raw.NextCursor == ""
				if !page.Last {
					page.Next = domain.PageStart{Cursor: raw.NextCursor}
				}
			}

			log.Debug("page fetched",
				"mode", caps.PageMode.String(),
				"items", len(page.Items),
				"fetched", len(raw.Items),
				"last", page.Last)

			if !yield(page, nil) || page.Last {
				return
			}
			pos = page.Next
		}
	}
}

// fetch performs one page fetch under a per-call timeout, retrying
// transient failures with exponential backoff.
func (p *Paginator) fetch(ctx context.Context, conn driven.Connector, scope domain.SyncScope, req domain.PageRequest) (*domain.RawPage, error) {
	var page *domain.RawPage
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.settings.FetchTimeout)
		defer cancel()

		raw, err := conn.FetchPage(callCtx, scope, req)
		if err == nil {
			page = raw
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsTransient(err) {
			return fmt.Errorf("%w: %w", domain.ErrTransientFetch, err)
		}
		if domain.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.settings.MaxFetchRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Default().Warn("page fetch failed, retrying",
			slog.String("scope", scope.String()),
			slog.Duration("wait", wait),
			logger.ErrAttr(err))
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, goerr.Wrap(err, "fetch page",
			goerr.V("scope", scope.String()),
			goerr.V("cursor", req.Cursor),
			goerr.V("offset", req.Offset))
	}
	if page == nil {
		page = &domain.RawPage{}
	}
	return page, nil
}

// filterItems applies the window to items that carry an update time.
// Items without one are kept so validation can report them.
func filterItems(items []domain.ExternalItem, f domain.Filters) []domain.ExternalItem {
	if f.ModifiedAfter == nil && f.ModifiedBefore == nil {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if it.UpdatedAt.IsZero() || f.Matches(it.UpdatedAt) {
			out = append(out, it)
		}
	}
	return out
}
