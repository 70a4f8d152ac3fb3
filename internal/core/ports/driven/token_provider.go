package driven

import (
	"context"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// TokenProvider provides access tokens for authenticated API calls.
type TokenProvider interface {
	// GetToken returns a valid access token.
	// Returns domain.ErrAuthRequired when no token is configured.
	GetToken(ctx context.Context) (string, error)

	// IsAuthenticated returns true if a token is available.
	IsAuthenticated() bool
}

// TokenProviderFactory resolves the credentials of a sync unit.
type TokenProviderFactory interface {
	// CreateTokenProvider returns the token provider of a unit.
	// Units without credentials get a provider that is always authenticated.
	CreateTokenProvider(unit domain.SyncUnit) TokenProvider
}
