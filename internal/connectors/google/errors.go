package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound
	}
	return errors.Is(err, domain.ErrNotFound)
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	return false
}

// WrapError maps a Google API error onto the sync error taxonomy.
// Rate limits, server errors and network failures are transient.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s: %w", domain.ErrAuthRequired, operation, err)
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %s: %w", domain.ErrNotFound, operation, err)
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: %w", domain.ErrRateLimited, operation, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %s: %w", domain.ErrTransientFetch, operation, err)
		default:
			return fmt.Errorf("%s: %w", operation, err)
		}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransientFetch, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
