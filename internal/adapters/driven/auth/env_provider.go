package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Ensure EnvTokenProvider implements the TokenProvider interface.
var _ driven.TokenProvider = (*EnvTokenProvider)(nil)

// EnvTokenProvider provides a static token (PAT or integration secret) read
// from an environment variable on every call, so rotated tokens are picked up
// without restart.
type EnvTokenProvider struct {
	name   string
	getenv func(string) string
}

// NewEnvTokenProvider creates a provider for the named variable.
func NewEnvTokenProvider(name string, getenv func(string) string) *EnvTokenProvider {
	return &EnvTokenProvider{name: name, getenv: getenv}
}

// GetToken returns the token.
// Returns domain.ErrAuthRequired when the variable is unset or empty.
func (p *EnvTokenProvider) GetToken(_ context.Context) (string, error) {
	token := strings.TrimSpace(p.getenv(p.name))
	if token == "" {
		return "", fmt.Errorf("%w: %s is not set", domain.ErrAuthRequired, p.name)
	}
	return token, nil
}

// IsAuthenticated returns true if the variable holds a token.
func (p *EnvTokenProvider) IsAuthenticated() bool {
	return strings.TrimSpace(p.getenv(p.name)) != ""
}
