package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/jomei/notionapi"
	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

const (
	// ConnectorType is the registry id of the connector.
	ConnectorType = "notion"

	// EntityPage is the scope entity type: one scope per database.
	EntityPage = "page"

	// MaxPageSize is the largest page a database query serves.
	MaxPageSize = 100

	// maxRetries bounds the client's own retries of 429 responses.
	maxRetries = 3
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// Connector mirrors the pages of Notion databases.
type Connector struct {
	unitID        string
	config        *Config
	tokenProvider driven.TokenProvider
	httpClient    *http.Client

	mu     sync.Mutex
	api    *notionapi.Client
	closed bool
}

// New creates a new Notion connector. A nil httpClient uses http.DefaultClient.
func New(unitID string, cfg *Config, tokenProvider driven.TokenProvider, httpClient *http.Client) *Connector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.BaseURL != nil {
		next := httpClient.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		httpClient = &http.Client{
			Transport: &rewriteTransport{base: cfg.BaseURL, next: next},
			Timeout:   httpClient.Timeout,
		}
	}
	return &Connector{
		unitID:        unitID,
		config:        cfg,
		tokenProvider: tokenProvider,
		httpClient:    httpClient,
	}
}

// Builder is the driven.ConnectorBuilder of the connector.
func Builder(unit domain.SyncUnit, tokenProvider driven.TokenProvider) (driven.Connector, error) {
	cfg, err := ParseConfig(unit)
	if err != nil {
		return nil, err
	}
	return New(unit.ID, cfg, tokenProvider, nil), nil
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return ConnectorType
}

// Capabilities returns the connector's capabilities.
// last_edited_time is truncated to the minute, so the paginator applies
// the exact window on top of the query filter.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		PageMode:             domain.PageModeCursor,
		MaxPageSize:          MaxPageSize,
		SupportsTimeFilter:   false,
		SupportsRateLimiting: true,
	}
}

// Scopes returns one page scope per configured database.
func (c *Connector) Scopes(_ context.Context) ([]domain.SyncScope, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	scopes := make([]domain.SyncScope, len(c.config.DatabaseIDs))
	for i, id := range c.config.DatabaseIDs {
		scopes[i] = domain.SyncScope{Connector: ConnectorType, EntityType: EntityPage, Key: id}
	}
	return scopes, nil
}

// FetchPage queries one page of a database, oldest edit first.
func (c *Connector) FetchPage(ctx context.Context, scope domain.SyncScope, req domain.PageRequest) (*domain.RawPage, error) {
	dbID, err := c.databaseOf(scope)
	if err != nil {
		return nil, err
	}
	cursor, err := DecodeCursor(req.Cursor, dbID)
	if err != nil {
		return nil, err
	}
	api, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	query := &notionapi.DatabaseQueryRequest{
		Filter: timeFilter(req.Filters),
		Sorts: []notionapi.SortObject{{
			Timestamp: notionapi.TimestampLastEdited,
			Direction: notionapi.SortOrderASC,
		}},
		StartCursor: notionapi.Cursor(cursor.StartCursor),
		PageSize:    limit,
	}

	resp, err := api.Database.Query(ctx, notionapi.DatabaseID(dbID), query)
	if err != nil {
		return nil, goerr.Wrap(wrapError(err, "query database"), "notion fetch page",
			goerr.V("database", dbID), goerr.V("unit", c.unitID))
	}

	raw := &domain.RawPage{
		Items:    make([]domain.ExternalItem, 0, len(resp.Results)),
		Consumed: len(resp.Results),
	}
	for i := range resp.Results {
		item, err := c.buildItem(ctx, api, &resp.Results[i])
		if err != nil {
			return nil, err
		}
		raw.Items = append(raw.Items, item)
	}
	if resp.HasMore && resp.NextCursor != "" {
		next := Cursor{Version: CursorVersion, DatabaseID: dbID, StartCursor: string(resp.NextCursor)}
		raw.NextCursor = next.Encode()
	}
	return raw, nil
}

// FetchItems fetches pages by id. Pages that no longer exist or that
// belong to another database are omitted.
func (c *Connector) FetchItems(ctx context.Context, scope domain.SyncScope, externalIDs []string) ([]domain.ExternalItem, error) {
	dbID, err := c.databaseOf(scope)
	if err != nil {
		return nil, err
	}
	api, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]domain.ExternalItem, 0, len(externalIDs))
	for _, id := range externalIDs {
		page, err := api.Page.Get(ctx, notionapi.PageID(id))
		if err != nil {
			err = wrapError(err, "get page")
			if isNotFound(err) {
				continue
			}
			return nil, goerr.Wrap(err, "notion fetch items", goerr.V("page", id))
		}
		if detectShape(page) != shapeDatabaseRow || normalizeID(page.Parent.DatabaseID.String()) != dbID {
			continue
		}
		item, err := c.buildItem(ctx, api, page)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.api = nil
	return nil
}

// buildItem normalizes a page and collects its file blocks.
// Archived pages are not walked.
func (c *Connector) buildItem(ctx context.Context, api *notionapi.Client, page *notionapi.Page) (domain.ExternalItem, error) {
	p := normalizePage(page)
	var files []attachment
	if !p.Archived {
		var err error
		files, err = fileBlocks(ctx, api, page.ID.String())
		if err != nil {
			return domain.ExternalItem{}, goerr.Wrap(err, "notion page blocks", goerr.V("page", p.ID))
		}
	}
	return buildPage(p, files), nil
}

// fileBlocks lists the top-level file-like blocks of a page.
func fileBlocks(ctx context.Context, api *notionapi.Client, pageID string) ([]attachment, error) {
	var out []attachment
	var cursor notionapi.Cursor
	for {
		resp, err := api.Block.GetChildren(ctx, notionapi.BlockID(pageID), &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    MaxPageSize,
		})
		if err != nil {
			return nil, wrapError(err, "get block children")
		}
		for _, b := range resp.Results {
			if a, ok := toAttachment(b); ok {
				out = append(out, a)
			}
		}
		if !resp.HasMore {
			return out, nil
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}
}

// timeFilter restricts a query to the modification window.
func timeFilter(f domain.Filters) notionapi.Filter {
	var filters []notionapi.Filter
	if f.ModifiedAfter != nil {
		after := notionapi.Date(f.ModifiedAfter.UTC().Truncate(time.Minute))
		filters = append(filters, &notionapi.TimestampFilter{
			Timestamp:      "last_edited_time",
			LastEditedTime: &notionapi.DateFilterCondition{OnOrAfter: &after},
		})
	}
	if f.ModifiedBefore != nil {
		before := notionapi.Date(f.ModifiedBefore.UTC())
		filters = append(filters, &notionapi.TimestampFilter{
			Timestamp:      "last_edited_time",
			LastEditedTime: &notionapi.DateFilterCondition{OnOrBefore: &before},
		})
	}
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return notionapi.AndCompoundFilter(filters)
	}
}

func (c *Connector) client(ctx context.Context) (*notionapi.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, domain.ErrConnectorClosed
	}
	if c.api != nil {
		return c.api, nil
	}
	if c.tokenProvider == nil {
		return nil, fmt.Errorf("%w: notion unit %s has no token", domain.ErrAuthRequired, c.unitID)
	}
	token, err := c.tokenProvider.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	c.api = notionapi.NewClient(notionapi.Token(token),
		notionapi.WithRetry(maxRetries),
		notionapi.WithHTTPClient(c.httpClient),
	)
	return c.api, nil
}

func (c *Connector) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectorClosed
	}
	return nil
}

func (c *Connector) databaseOf(scope domain.SyncScope) (string, error) {
	if scope.Connector != ConnectorType || scope.EntityType != EntityPage {
		return "", fmt.Errorf("%w: scope %s is not a notion page scope", domain.ErrInvalidInput, scope)
	}
	id := normalizeID(scope.Key)
	if !slices.Contains(c.config.DatabaseIDs, id) {
		return "", fmt.Errorf("%w: database %s is not configured for unit %s", domain.ErrInvalidInput, scope.Key, c.unitID)
	}
	return id, nil
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, domain.ErrNotFound)
}
