package google

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// TokenSourceAdapter adapts a driven.TokenProvider to oauth2.TokenSource so
// Google API clients draw tokens from the unit's credentials.
type TokenSourceAdapter struct {
	provider driven.TokenProvider
	ctx      context.Context
}

// NewTokenSource creates an oauth2.TokenSource from a TokenProvider.
// The context is detached from cancellation: the source outlives the call
// that created the service.
func NewTokenSource(ctx context.Context, provider driven.TokenProvider) oauth2.TokenSource {
	return &TokenSourceAdapter{
		provider: provider,
		ctx:      context.WithoutCancel(ctx),
	}
}

// Token implements oauth2.TokenSource.
func (t *TokenSourceAdapter) Token() (*oauth2.Token, error) {
	accessToken, err := t.provider.GetToken(t.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}, nil
}
