package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Ensure OAuthTokenProvider implements the TokenProvider interface.
var _ driven.TokenProvider = (*OAuthTokenProvider)(nil)

// OAuthTokenProvider exchanges a long-lived refresh token for access tokens.
// Access tokens are cached until shortly before expiry.
type OAuthTokenProvider struct {
	config       *oauth2.Config
	refreshToken string

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewOAuthTokenProvider creates a provider refreshing through config.
func NewOAuthTokenProvider(config *oauth2.Config, refreshToken string) *OAuthTokenProvider {
	return &OAuthTokenProvider{config: config, refreshToken: refreshToken}
}

// GetToken returns a valid access token, refreshing if necessary.
func (p *OAuthTokenProvider) GetToken(ctx context.Context) (string, error) {
	if !p.IsAuthenticated() {
		return "", fmt.Errorf("%w: no refresh token configured", domain.ErrAuthRequired)
	}

	p.mu.Lock()
	if p.source == nil {
		// The source outlives this call; detach it from ctx cancellation.
		base := p.config.TokenSource(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: p.refreshToken})
		p.source = oauth2.ReuseTokenSource(nil, base)
	}
	src := p.source
	p.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: refresh token: %w", domain.ErrAuthRequired, err)
	}
	return tok.AccessToken, nil
}

// IsAuthenticated returns true if a refresh token and client are configured.
func (p *OAuthTokenProvider) IsAuthenticated() bool {
	return p.refreshToken != "" && p.config.ClientID != ""
}
