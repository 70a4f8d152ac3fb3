package notion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/jomei/notionapi"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// wrapError maps a Notion API error onto the sync error taxonomy.
func wrapError(err error, operation string) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s: %w", domain.ErrAuthRequired, operation, err)
		case apiErr.Status == http.StatusNotFound:
			return fmt.Errorf("%w: %s: %w", domain.ErrNotFound, operation, err)
		case apiErr.Status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: %w", domain.ErrRateLimited, operation, err)
		case apiErr.Status >= 500:
			return fmt.Errorf("%w: %s: %w", domain.ErrTransientFetch, operation, err)
		}
		return fmt.Errorf("%s: %w", operation, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransientFetch, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// rewriteTransport sends requests to base instead of api.notion.com.
type rewriteTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.Host = t.base.Host
	return t.next.RoundTrip(r)
}
