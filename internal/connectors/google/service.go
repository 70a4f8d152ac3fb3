package google

import (
	"context"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// NewGmailService creates a Gmail API service using the provided TokenSource.
// Extra options (endpoint, HTTP client) are appended after the token source.
func NewGmailService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*gmail.Service, error) {
	return gmail.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)...)
}
