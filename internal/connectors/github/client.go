package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Client wraps the go-github client with rate limiting and error mapping.
type Client struct {
	tokenProvider driven.TokenProvider
	rateLimiter   *RateLimiter
	baseURL       string

	mu sync.Mutex
	gh *gh.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithRateLimiter replaces the default rate limiter.
func WithRateLimiter(r *RateLimiter) ClientOption {
	return func(c *Client) { c.rateLimiter = r }
}

// NewClient creates a new GitHub API client with a token provider.
// The HTTP client is built lazily on the first call.
func NewClient(tokenProvider driven.TokenProvider, opts ...ClientOption) *Client {
	c := &Client{
		tokenProvider: tokenProvider,
		rateLimiter:   NewRateLimiter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ensureClient initializes the go-github client if not already done.
// An empty token yields an unauthenticated client for public repositories.
func (c *Client) ensureClient(ctx context.Context) (*gh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gh != nil {
		return c.gh, nil
	}

	var token string
	if c.tokenProvider != nil {
		t, err := c.tokenProvider.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		token = t
	}

	httpClient := &http.Client{Timeout: DefaultTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.WithoutCancel(ctx), ts)
		httpClient.Timeout = DefaultTimeout
	}

	client := gh.NewClient(httpClient)
	if c.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(c.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("%w: github base url: %w", domain.ErrConfiguration, err)
		}
		client.BaseURL = base
	}
	c.gh = client
	return client, nil
}

// call waits for the rate limiter, runs fn and records the quota headers.
func (c *Client) call(ctx context.Context, operation string, fn func(*gh.Client) (*gh.Response, error)) error {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return err
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	resp, err := fn(client)
	if resp != nil && resp.Response != nil {
		c.rateLimiter.UpdateFromResponse(resp.Response)
	}
	return c.wrapError(err, operation)
}

// ListIssuesPage returns one page of issues and pull requests of a repository
// ordered by update time, and whether a following page exists.
func (c *Client) ListIssuesPage(
	ctx context.Context, repo RepoRef, state string, since time.Time, page, perPage int,
) ([]*gh.Issue, bool, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       state,
		Sort:        "updated",
		Direction:   "asc",
		Since:       since,
		ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
	}
	var issues []*gh.Issue
	var more bool
	err := c.call(ctx, "list issues", func(client *gh.Client) (*gh.Response, error) {
		res, resp, err := client.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
		issues = res
		if resp != nil {
			more = resp.NextPage != 0
		}
		return resp, err
	})
	return issues, more, err
}

// GetIssue fetches a single issue.
func (c *Client) GetIssue(ctx context.Context, repo RepoRef, number int) (*gh.Issue, error) {
	var issue *gh.Issue
	err := c.call(ctx, "get issue", func(client *gh.Client) (*gh.Response, error) {
		res, resp, err := client.Issues.Get(ctx, repo.Owner, repo.Name, number)
		issue = res
		return resp, err
	})
	return issue, err
}

// ListIssueComments retrieves all comments of an issue.
func (c *Client) ListIssueComments(ctx context.Context, repo RepoRef, number int) ([]*gh.IssueComment, error) {
	var all []*gh.IssueComment
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		var next int
		err := c.call(ctx, "list comments", func(client *gh.Client) (*gh.Response, error) {
			comments, resp, err := client.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
			all = append(all, comments...)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		if next == 0 {
			return all, nil
		}
		opts.Page = next
	}
}

// ListIssueEvents returns the issue events of a repository newer than since,
// newest first as GitHub serves them.
func (c *Client) ListIssueEvents(ctx context.Context, repo RepoRef, since time.Time) ([]*gh.IssueEvent, error) {
	var all []*gh.IssueEvent
	opts := &gh.ListOptions{PerPage: 100}
	for {
		var next int
		var page []*gh.IssueEvent
		err := c.call(ctx, "list issue events", func(client *gh.Client) (*gh.Response, error) {
			res, resp, err := client.Issues.ListRepositoryEvents(ctx, repo.Owner, repo.Name, opts)
			page = res
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, ev := range page {
			if !ev.GetCreatedAt().Time.After(since) {
				return all, nil
			}
			all = append(all, ev)
		}
		if next == 0 {
			return all, nil
		}
		opts.Page = next
	}
}

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// wrapError converts go-github errors to our error types.
// Network failures are transient.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateLimitErr) || errors.As(err, &abuseErr) {
		return &RateLimitError{
			ResetAt:   c.rateLimiter.ResetTime(),
			Remaining: c.rateLimiter.Remaining(),
			Limit:     c.rateLimiter.Limit(),
		}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{StatusCode: ghErr.Response.StatusCode, Message: ghErr.Message}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return apiErr
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransientFetch, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
