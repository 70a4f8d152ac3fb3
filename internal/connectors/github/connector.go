package github

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

const (
	// ConnectorType is the registry id of the connector.
	ConnectorType = "github"

	// EntityIssue is the scope entity type: one scope per repository.
	EntityIssue = "issue"

	// MaxPageSize is the largest page the issues API serves.
	MaxPageSize = 100
)

// Ensure Connector implements the interfaces.
var (
	_ driven.Connector        = (*Connector)(nil)
	_ driven.PermissionSource = (*Connector)(nil)
)

// Connector mirrors the issues of GitHub repositories.
type Connector struct {
	unitID string
	config *Config
	client *Client

	mu     sync.Mutex
	closed bool
}

// New creates a new GitHub connector.
func New(unitID string, cfg *Config, tokenProvider driven.TokenProvider, opts ...ClientOption) *Connector {
	if cfg.BaseURL != "" {
		opts = append([]ClientOption{WithBaseURL(cfg.BaseURL)}, opts...)
	}
	return &Connector{
		unitID: unitID,
		config: cfg,
		client: NewClient(tokenProvider, opts...),
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
// The API's since parameter is inclusive, so the paginator applies the
// exclusive window itself.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		PageMode:                domain.PageModeOffset,
		MaxPageSize:             MaxPageSize,
		SupportsTimeFilter:      false,
		SupportsPermissionAudit: true,
		SupportsRateLimiting:    true,
	}
}

// Scopes returns one issue scope per configured repository.
func (c *Connector) Scopes(_ context.Context) ([]domain.SyncScope, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	scopes := make([]domain.SyncScope, len(c.config.Repos))
	for i, r := range c.config.Repos {
		scopes[i] = domain.SyncScope{Connector: ConnectorType, EntityType: EntityIssue, Key: r.String()}
	}
	return scopes, nil
}

// FetchPage fetches the issues at req.Offset. Pull requests share the
// issues listing; they count towards the page but are not returned.
func (c *Connector) FetchPage(ctx context.Context, scope domain.SyncScope, req domain.PageRequest) (*domain.RawPage, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	repo, err := c.repoOf(scope)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	page := req.Offset/limit + 1
	skip := req.Offset % limit

	var since time.Time
	if req.Filters.ModifiedAfter != nil {
		since = *req.Filters.ModifiedAfter
	}

	issues, more, err := c.client.ListIssuesPage(ctx, repo, c.config.State, since, page, limit)
	if err != nil {
		return nil, err
	}
	if skip >= len(issues) {
		issues = nil
	} else {
		issues = issues[skip:]
	}

	raw := &domain.RawPage{Consumed: len(issues)}
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		comments, err := fetchComments(ctx, c.client, repo, issue)
		if err != nil {
			return nil, fmt.Errorf("comments of %s: %w", IssueID(repo, issue.GetNumber()), err)
		}
		raw.Items = append(raw.Items, buildIssue(repo, issue, comments))
	}
	if !more {
		raw.Total = req.Offset + len(issues)
	}
	return raw, nil
}

// FetchItems fetches issues by external id. Unknown issues and pull
// requests are omitted.
func (c *Connector) FetchItems(ctx context.Context, scope domain.SyncScope, externalIDs []string) ([]domain.ExternalItem, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if _, err := c.repoOf(scope); err != nil {
		return nil, err
	}

	items := make([]domain.ExternalItem, 0, len(externalIDs))
	for _, id := range externalIDs {
		repo, number, err := ParseIssueID(id)
		if err != nil || repo.String() != scope.Key {
			continue
		}
		issue, err := c.client.GetIssue(ctx, repo, number)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if issue.IsPullRequest() {
			continue
		}
		comments, err := fetchComments(ctx, c.client, repo, issue)
		if err != nil {
			return nil, fmt.Errorf("comments of %s: %w", id, err)
		}
		items = append(items, buildIssue(repo, issue, comments))
	}
	return items, nil
}

// AuditEvents returns the issue events of every repository in (since, until],
// oldest first.
func (c *Connector) AuditEvents(ctx context.Context, since, until time.Time) ([]domain.AuditEvent, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	var out []domain.AuditEvent
	for _, repo := range c.config.Repos {
		events, err := c.client.ListIssueEvents(ctx, repo, since)
		if err != nil {
			return nil, fmt.Errorf("issue events of %s: %w", repo, err)
		}
		for _, ev := range events {
			if ev.GetCreatedAt().Time.After(until) {
				continue
			}
			out = append(out, buildAuditEvent(repo, ev))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// FetchPermissions returns the current grants of an issue.
func (c *Connector) FetchPermissions(ctx context.Context, externalID string) ([]domain.Grant, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	repo, number, err := ParseIssueID(externalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	issue, err := c.client.GetIssue(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	return issueGrants(issue), nil
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Connector) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectorClosed
	}
	return nil
}

func (c *Connector) repoOf(scope domain.SyncScope) (RepoRef, error) {
	if scope.Connector != ConnectorType || scope.EntityType != EntityIssue {
		return RepoRef{}, fmt.Errorf("%w: scope %s is not a github issue scope", domain.ErrInvalidInput, scope)
	}
	repo, err := ParseRepoRef(scope.Key)
	if err != nil {
		return RepoRef{}, errors.Join(domain.ErrInvalidInput, err)
	}
	return repo, nil
}
