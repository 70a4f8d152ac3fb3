package notion

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// Configuration keys of a notion unit.
const (
	ConfigDatabaseIDs = "database_ids"
	ConfigBaseURL     = "base_url"
)

// Config holds Notion connector configuration.
type Config struct {
	// DatabaseIDs are the databases to mirror, one scope each.
	DatabaseIDs []string
	// BaseURL redirects API requests, e.g. to a proxy. Empty uses api.notion.com.
	BaseURL *url.URL
}

// ParseConfig extracts configuration from a unit.
func ParseConfig(unit domain.SyncUnit) (*Config, error) {
	cfg := &Config{}
	for _, id := range strings.Split(unit.Config[ConfigDatabaseIDs], ",") {
		if id = normalizeID(id); id != "" {
			cfg.DatabaseIDs = append(cfg.DatabaseIDs, id)
		}
	}
	if len(cfg.DatabaseIDs) == 0 {
		return nil, fmt.Errorf("%w: unit %s: %s is required", domain.ErrConfiguration, unit.ID, ConfigDatabaseIDs)
	}

	if raw := unit.Config[ConfigBaseURL]; raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w: unit %s: invalid %s %q", domain.ErrConfiguration, unit.ID, ConfigBaseURL, raw)
		}
		cfg.BaseURL = u
	}
	return cfg, nil
}

// normalizeID strips the dashes Notion ids may be written with.
func normalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}
