package auth

import (
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Unit config keys that switch a unit to OAuth refresh-token authentication.
// The refresh token itself is read from the unit's TokenEnv.
const (
	ConfigOAuthClientIDEnv     = "oauth_client_id_env"
	ConfigOAuthClientSecretEnv = "oauth_client_secret_env"
	ConfigOAuthTokenURL        = "oauth_token_url"
)

// Ensure Factory implements the interface.
var _ driven.TokenProviderFactory = (*Factory)(nil)

// Factory creates TokenProviders for sync units from environment variables.
type Factory struct {
	getenv func(string) string
}

// NewFactory creates a token provider factory reading the process environment.
func NewFactory() *Factory {
	return &Factory{getenv: os.Getenv}
}

// CreateTokenProvider creates the appropriate TokenProvider for a unit.
// Units without a TokenEnv get a NullTokenProvider.
func (f *Factory) CreateTokenProvider(unit domain.SyncUnit) driven.TokenProvider {
	if unit.TokenEnv == "" {
		return NewNullTokenProvider()
	}

	clientIDEnv := unit.Config[ConfigOAuthClientIDEnv]
	if clientIDEnv == "" {
		return NewEnvTokenProvider(unit.TokenEnv, f.getenv)
	}

	cfg := &oauth2.Config{
		ClientID:     f.getenv(clientIDEnv),
		ClientSecret: f.getenv(unit.Config[ConfigOAuthClientSecretEnv]),
		Endpoint:     endpointFor(unit),
	}
	return NewOAuthTokenProvider(cfg, f.getenv(unit.TokenEnv))
}

// endpointFor picks the token endpoint of a unit, defaulting by connector type.
func endpointFor(unit domain.SyncUnit) oauth2.Endpoint {
	if u := strings.TrimSpace(unit.Config[ConfigOAuthTokenURL]); u != "" {
		return oauth2.Endpoint{TokenURL: u, AuthStyle: oauth2.AuthStyleInParams}
	}
	switch unit.Connector {
	case "github":
		return endpoints.GitHub
	case "notion":
		return oauth2.Endpoint{TokenURL: "https://api.notion.com/v1/oauth/token", AuthStyle: oauth2.AuthStyleInHeader}
	default:
		return endpoints.Google
	}
}
