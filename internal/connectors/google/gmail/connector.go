package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/custodia-labs/sercha-mirror/internal/connectors/google"
	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

const (
	// ConnectorType is the registry id of the connector.
	ConnectorType = "gmail"

	// EntityMessage is the scope entity type: one scope per label.
	EntityMessage = "message"

	// MaxPageSize is the largest page messages.list serves.
	MaxPageSize = 500

	user = "me"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// Connector mirrors the messages of Gmail labels.
type Connector struct {
	unitID        string
	config        *Config
	tokenProvider driven.TokenProvider
	opts          []option.ClientOption
	rateLimiter   *google.RateLimiter

	mu      sync.Mutex
	service *gmail.Service
	closed  bool
}

// New creates a new Gmail connector. Extra client options are passed to
// the Gmail service.
func New(unitID string, cfg *Config, tokenProvider driven.TokenProvider, opts ...option.ClientOption) *Connector {
	if cfg.Endpoint != "" {
		opts = append([]option.ClientOption{option.WithEndpoint(cfg.Endpoint)}, opts...)
	}
	return &Connector{
		unitID:        unitID,
		config:        cfg,
		tokenProvider: tokenProvider,
		opts:          opts,
		rateLimiter:   google.NewRateLimiter(google.GmailRateLimit),
	}
}

// Builder is the driven.ConnectorBuilder of the connector.
func Builder(unit domain.SyncUnit, tokenProvider driven.TokenProvider) (driven.Connector, error) {
	cfg, err := ParseConfig(unit)
	if err != nil {
		return nil, err
	}
	return New(unit.ID, cfg, tokenProvider), nil
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return ConnectorType
}

// Capabilities returns the connector's capabilities.
// Search filters have second granularity, so the paginator still applies
// the exact window.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		PageMode:                domain.PageModeCursor,
		MaxPageSize:             MaxPageSize,
		SupportsTimeFilter:      false,
		SupportsPermissionAudit: false,
		SupportsRateLimiting:    true,
	}
}

// Scopes returns one message scope per configured label.
func (c *Connector) Scopes(_ context.Context) ([]domain.SyncScope, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	scopes := make([]domain.SyncScope, len(c.config.LabelIDs))
	for i, l := range c.config.LabelIDs {
		scopes[i] = domain.SyncScope{Connector: ConnectorType, EntityType: EntityMessage, Key: l}
	}
	return scopes, nil
}

// FetchPage lists one page of a label and fetches each message in full.
func (c *Connector) FetchPage(ctx context.Context, scope domain.SyncScope, req domain.PageRequest) (*domain.RawPage, error) {
	label, err := c.labelOf(scope)
	if err != nil {
		return nil, err
	}
	cursor, err := DecodeCursor(req.Cursor, label)
	if err != nil {
		return nil, err
	}
	svc, err := c.getService(ctx)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	call := svc.Users.Messages.List(user).
		LabelIds(label).
		MaxResults(int64(limit)).
		IncludeSpamTrash(c.config.IncludeSpamTrash).
		Context(ctx)
	if cursor.PageToken != "" {
		call = call.PageToken(cursor.PageToken)
	}
	if q := searchQuery(c.config.Query, req.Filters); q != "" {
		call = call.Q(q)
	}

	var resp *gmail.ListMessagesResponse
	err = c.do(ctx, "list messages", func() error {
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	raw := &domain.RawPage{
		Items:    make([]domain.ExternalItem, 0, len(resp.Messages)),
		Consumed: len(resp.Messages),
	}
	for _, ref := range resp.Messages {
		msg, err := c.getMessage(ctx, svc, ref.Id)
		if google.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !shouldSync(msg, c.config) {
			continue
		}
		raw.Items = append(raw.Items, buildMessage(msg, label))
	}

	if resp.NextPageToken != "" {
		next := Cursor{Version: CursorVersion, Label: label, PageToken: resp.NextPageToken}
		raw.NextCursor = next.Encode()
	}
	return raw, nil
}

// FetchItems fetches messages by id. Messages that no longer exist or
// that left the label are omitted.
func (c *Connector) FetchItems(ctx context.Context, scope domain.SyncScope, externalIDs []string) ([]domain.ExternalItem, error) {
	label, err := c.labelOf(scope)
	if err != nil {
		return nil, err
	}
	svc, err := c.getService(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]domain.ExternalItem, 0, len(externalIDs))
	for _, id := range externalIDs {
		msg, err := c.getMessage(ctx, svc, id)
		if google.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !slices.Contains(msg.LabelIds, label) || !shouldSync(msg, c.config) {
			continue
		}
		items = append(items, buildMessage(msg, label))
	}
	return items, nil
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.service = nil
	return nil
}

func (c *Connector) getMessage(ctx context.Context, svc *gmail.Service, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.do(ctx, "get message "+id, func() error {
		var err error
		msg, err = svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		return err
	})
	return msg, err
}

// do runs one API request under the rate limiter. A 429 pauses further
// requests for the Retry-After period.
func (c *Connector) do(ctx context.Context, operation string, fn func() error) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		c.rateLimiter.RecordRateLimitError(retryAfter(gerr.Header))
	}
	return google.WrapError(err, operation)
}

func (c *Connector) getService(ctx context.Context) (*gmail.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, domain.ErrConnectorClosed
	}
	if c.service != nil {
		return c.service, nil
	}

	ts := google.NewTokenSource(ctx, c.tokenProvider)
	svc, err := google.NewGmailService(ctx, ts, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: gmail service: %w", domain.ErrConfiguration, err)
	}
	c.service = svc
	return svc, nil
}

func (c *Connector) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectorClosed
	}
	return nil
}

func (c *Connector) labelOf(scope domain.SyncScope) (string, error) {
	if scope.Connector != ConnectorType || scope.EntityType != EntityMessage || scope.Key == "" {
		return "", fmt.Errorf("%w: scope %s is not a gmail message scope", domain.ErrInvalidInput, scope)
	}
	if !slices.Contains(c.config.LabelIDs, scope.Key) {
		return "", fmt.Errorf("%w: label %s is not configured for unit %s", domain.ErrInvalidInput, scope.Key, c.unitID)
	}
	return scope.Key, nil
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
