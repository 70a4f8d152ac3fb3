package gmail

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// Configuration keys of a gmail unit.
const (
	ConfigLabelIDs         = "label_ids"
	ConfigQuery            = "query"
	ConfigIncludeSpamTrash = "include_spam_trash"
	ConfigEndpoint         = "endpoint"
)

// Config holds Gmail connector configuration.
type Config struct {
	// LabelIDs are the labels to mirror, one scope each. Default: INBOX.
	LabelIDs []string
	// Query is an additional Gmail search query (optional).
	Query string
	// IncludeSpamTrash includes spam and trash if true; trashed
	// messages are then mirrored as deleted.
	IncludeSpamTrash bool
	// Endpoint overrides the API endpoint.
	Endpoint string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{LabelIDs: []string{"INBOX"}}
}

// ParseConfig extracts configuration from a unit.
func ParseConfig(unit domain.SyncUnit) (*Config, error) {
	cfg := DefaultConfig()

	if val := unit.Config[ConfigLabelIDs]; val != "" {
		var labels []string
		for _, l := range strings.Split(val, ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		if len(labels) > 0 {
			cfg.LabelIDs = labels
		}
	}

	cfg.Query = strings.TrimSpace(unit.Config[ConfigQuery])
	cfg.Endpoint = unit.Config[ConfigEndpoint]

	if val := unit.Config[ConfigIncludeSpamTrash]; val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("%w: unit %s: invalid %s %q", domain.ErrConfiguration, unit.ID, ConfigIncludeSpamTrash, val)
		}
		cfg.IncludeSpamTrash = b
	}
	return cfg, nil
}
