package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

var mailScope = domain.SyncScope{Connector: "gmail", EntityType: "thread", Key: "INBOX"}

func newTestPaginator(settings domain.EngineSettings) *Paginator {
	p := NewPaginator(settings)
	p.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return p
}

func collect(t *testing.T, p *Paginator, conn driven.Connector, scope domain.SyncScope, start domain.PageStart, f domain.Filters) ([]domain.Page, error) {
	t.Helper()
	var pages []domain.Page
	for page, err := range p.Pages(context.Background(), conn, scope, start, f) {
		if err != nil {
			return pages, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func TestPaginator_CursorMode_ThreePages(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	conn.setPage(mailScope, domain.PageStart{}, &domain.RawPage{Items: []domain.ExternalItem{item("a", 1), item("b", 2)}, NextCursor: "c1"})
	conn.setPage(mailScope, domain.PageStart{Cursor: "c1"}, &domain.RawPage{Items: []domain.ExternalItem{item("c", 3), item("d", 4)}, NextCursor: "c2"})
	conn.setPage(mailScope, domain.PageStart{Cursor: "c2"}, &domain.RawPage{Items: []domain.ExternalItem{item("e", 5)}})

	pages, err := collect(t, newTestPaginator(domain.EngineSettings{BatchSize: 2}), conn, mailScope, domain.PageStart{}, domain.Filters{})
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, domain.PageStart{Cursor: "c1"}, pages[0].Next)
	assert.Equal(t, domain.PageStart{Cursor: "c2"}, pages[1].Next)
	assert.True(t, pages[2].Last)
	assert.False(t, pages[0].Last)

	reqs := conn.requestLog()
	require.Len(t, reqs, 3)
	assert.Equal(t, "", reqs[0].Cursor)
	assert.Equal(t, "c1", reqs[1].Cursor)
	assert.Equal(t, "c2", reqs[2].Cursor)
	assert.Equal(t, 2, reqs[0].Limit)
}

func TestPaginator_CursorMode_ResumesFromCursor(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	conn.setPage(mailScope, domain.PageStart{Cursor: "c2"}, &domain.RawPage{Items: []domain.ExternalItem{item("e", 5)}})

	pages, err := collect(t, newTestPaginator(domain.EngineSettings{}), conn, mailScope, domain.PageStart{Cursor: "c2"}, domain.Filters{})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "c2", pages[0].Start.Cursor)
	assert.Len(t, conn.requestLog(), 1)
}

func TestPaginator_CursorMode_RepeatedCursorFails(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	conn.setPage(mailScope, domain.PageStart{Cursor: "c1"}, &domain.RawPage{Items: []domain.ExternalItem{item("a", 1)}, NextCursor: "c1"})

	_, err := collect(t, newTestPaginator(domain.EngineSettings{}), conn, mailScope, domain.PageStart{Cursor: "c1"}, domain.Filters{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)
}

func TestPaginator_OffsetMode(t *testing.T) {
	repo := domain.SyncScope{Connector: "github", EntityType: "issue", Key: "acme/app"}
	caps := driven.ConnectorCapabilities{PageMode: domain.PageModeOffset, SupportsTimeFilter: true}

	tests := []struct {
		name     string
		pages    map[int]*domain.RawPage
		requests int
	}{
		{
			name: "stops on short page",
			pages: map[int]*domain.RawPage{
				0: {Items: []domain.ExternalItem{item("1", 1), item("2", 2)}},
				2: {Items: []domain.ExternalItem{item("3", 3)}},
			},
			requests: 2,
		},
		{
			name: "stops when total reached",
			pages: map[int]*domain.RawPage{
				0: {Items: []domain.ExternalItem{item("1", 1), item("2", 2)}, Total: 4},
				2: {Items: []domain.ExternalItem{item("3", 3), item("4", 4)}, Total: 4},
			},
			requests: 2,
		},
		{
			name: "unknown total fetches until empty",
			pages: map[int]*domain.RawPage{
				0: {Items: []domain.ExternalItem{item("1", 1), item("2", 2)}},
				2: {Items: []domain.ExternalItem{item("3", 3), item("4", 4)}},
			},
			requests: 3,
		},
		{
			name: "dropped entries do not end pagination",
			pages: map[int]*domain.RawPage{
				0: {Items: []domain.ExternalItem{item("1", 1)}, Consumed: 2},
				2: {Items: []domain.ExternalItem{item("3", 3)}},
			},
			requests: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newMockConnector("github", caps, repo)
			for off, page := range tt.pages {
				conn.setPage(repo, domain.PageStart{Offset: off}, page)
			}

			pages, err := collect(t, newTestPaginator(domain.EngineSettings{BatchSize: 2}), conn, repo, domain.PageStart{}, domain.Filters{})
			require.NoError(t, err)

			reqs := conn.requestLog()
			require.Len(t, reqs, tt.requests)
			for i, r := range reqs {
				assert.Equal(t, i*2, r.Offset)
			}
			assert.True(t, pages[len(pages)-1].Last)
		})
	}
}

func TestPaginator_EmptyWindowFetchesNothing(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	after, before := at(10), at(5)

	pages, err := collect(t, newTestPaginator(domain.EngineSettings{}), conn, mailScope, domain.PageStart{},
		domain.Filters{ModifiedAfter: &after, ModifiedBefore: &before, Origin: domain.OriginConfigured})
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Empty(t, conn.requestLog())
}

func TestPaginator_PassesFiltersToConnector(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	after := at(0)
	f := domain.Filters{ModifiedAfter: &after, Origin: domain.OriginCheckpoint}

	_, err := collect(t, newTestPaginator(domain.EngineSettings{}), conn, mailScope, domain.PageStart{}, f)
	require.NoError(t, err)

	reqs := conn.requestLog()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Filters.ModifiedAfter)
	assert.Equal(t, after, *reqs[0].Filters.ModifiedAfter)
}

func TestPaginator_ClientSideFilter(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{}, mailScope)
	undated := domain.ExternalItem{ExternalID: "undated"}
	conn.setPage(mailScope, domain.PageStart{}, &domain.RawPage{Items: []domain.ExternalItem{
		item("old", -5), item("boundary", 0), item("new", 5), undated,
	}})
	after := at(0)

	pages, err := collect(t, newTestPaginator(domain.EngineSettings{}), conn, mailScope, domain.PageStart{},
		domain.Filters{ModifiedAfter: &after, Origin: domain.OriginCheckpoint})
	require.NoError(t, err)
	require.Len(t, pages, 1)

	var ids []string
	for _, it := range pages[0].Items {
		ids = append(ids, it.ExternalID)
	}
	assert.Equal(t, []string{"new", "undated"}, ids)
}

func TestPaginator_RetriesTransientErrors(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	conn.failAt(mailScope, domain.PageStart{},
		fmt.Errorf("%w: 503", domain.ErrTransientFetch),
		fmt.Errorf("%w: slow down", domain.ErrRateLimited))
	conn.setPage(mailScope, domain.PageStart{}, &domain.RawPage{Items: []domain.ExternalItem{item("a", 1)}})

	pages, err := collect(t, newTestPaginator(domain.EngineSettings{MaxFetchRetries: 3}), conn, mailScope, domain.PageStart{}, domain.Filters{})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Len(t, conn.requestLog(), 3)
}

func TestPaginator_GivesUpAfterMaxRetries(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	transient := fmt.Errorf("%w: 503", domain.ErrTransientFetch)
	conn.failAt(mailScope, domain.PageStart{}, transient, transient, transient, transient, transient)

	_, err := collect(t, newTestPaginator(domain.EngineSettings{MaxFetchRetries: 2}), conn, mailScope, domain.PageStart{}, domain.Filters{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransientFetch)
	assert.Len(t, conn.requestLog(), 3)
}

func TestPaginator_PermanentErrorNotRetried(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	conn.failAt(mailScope, domain.PageStart{}, errBoom)

	_, err := collect(t, newTestPaginator(domain.EngineSettings{MaxFetchRetries: 3}), conn, mailScope, domain.PageStart{}, domain.Filters{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, conn.requestLog(), 1)
}

func TestPaginator_DeadlineIsTransient(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	conn.failAt(mailScope, domain.PageStart{}, context.DeadlineExceeded)
	conn.setPage(mailScope, domain.PageStart{}, &domain.RawPage{Items: []domain.ExternalItem{item("a", 1)}})

	pages, err := collect(t, newTestPaginator(domain.EngineSettings{MaxFetchRetries: 1, FetchTimeout: time.Second}),
		conn, mailScope, domain.PageStart{}, domain.Filters{})
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestPaginator_StopsWhenConsumerBreaks(t *testing.T) {
	conn := newMockConnector("gmail", driven.ConnectorCapabilities{SupportsTimeFilter: true}, mailScope)
	conn.setPage(mailScope, domain.PageStart{}, &domain.RawPage{Items: []domain.ExternalItem{item("a", 1)}, NextCursor: "c1"})
	conn.setPage(mailScope, domain.PageStart{Cursor: "c1"}, &domain.RawPage{Items: []domain.ExternalItem{item("b", 2)}})

	p := newTestPaginator(domain.EngineSettings{})
	for range p.Pages(context.Background(), conn, mailScope, domain.PageStart{}, domain.Filters{}) {
		break
	}
	assert.Len(t, conn.requestLog(), 1)
}

func TestPaginator_BatchSize(t *testing.T) {
	p := NewPaginator(domain.EngineSettings{BatchSize: 100})

	uncapped := newMockConnector("gmail", driven.ConnectorCapabilities{})
	assert.Equal(t, 100, p.BatchSize(uncapped))

	capped := newMockConnector("gmail", driven.ConnectorCapabilities{MaxPageSize: 25})
	assert.Equal(t, 25, p.BatchSize(capped))
}
