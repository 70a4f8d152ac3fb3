package domain

import (
	"fmt"
	"strings"
	"time"
)

// SyncUnit is a top-level unit of synchronisation (a user, mailbox or workspace)
// with its own lifecycle state.
type SyncUnit struct {
	// ID is the unique identifier for the unit.
	ID string

	// Connector identifies the connector type (e.g., "gmail", "notion", "github").
	Connector string

	// Name is the human-readable name for this unit.
	Name string

	// Scopes restricts the streams to sync. Empty means every scope the connector reports.
	Scopes []string

	// Window is the configured modification-time filter, nil when not configured.
	Window *TimeWindow

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string

	// Config contains connector-specific configuration.
	Config map[string]string
}

// Validate checks the unit definition.
// Returns an error wrapping ErrConfiguration.
func (u *SyncUnit) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: unit without id", ErrConfiguration)
	}
	if strings.TrimSpace(u.Connector) == "" {
		return fmt.Errorf("%w: unit %s has no connector", ErrConfiguration, u.ID)
	}
	if u.Window != nil && u.Window.ModifiedAfter != nil && u.Window.ModifiedBefore != nil &&
		!u.Window.ModifiedBefore.After(*u.Window.ModifiedAfter) {
		return fmt.Errorf("%w: unit %s has modified_before not after modified_after", ErrConfiguration, u.ID)
	}
	for _, s := range u.Scopes {
		if _, err := ParseSyncScope(s); err != nil {
			return fmt.Errorf("%w: unit %s has invalid scope %q", ErrConfiguration, u.ID, s)
		}
	}
	return nil
}

// DisplayName returns the name or the ID when no name is set.
func (u *SyncUnit) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// EngineSettings tunes the sync engine.
type EngineSettings struct {
	// BatchSize is the page size requested from connectors.
	BatchSize int

	// BuildWorkers bounds the goroutines building a batch in memory.
	BuildWorkers int

	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration

	// MaxFetchRetries bounds retries of a transient page fetch failure.
	MaxFetchRetries int

	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration

	// PermissionScan enables the permission diff pass after the scopes.
	PermissionScan bool
}

// DefaultEngineSettings returns sensible defaults for the engine.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		BatchSize:            50,
		BuildWorkers:         4,
		FetchTimeout:         30 * time.Second,
		MaxFetchRetries:      3,
		RetryInitialInterval: time.Second,
		PermissionScan:       true,
	}
}

// Normalize replaces unset values by their defaults.
func (s EngineSettings) Normalize() EngineSettings {
	d := DefaultEngineSettings()
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	if s.BuildWorkers <= 0 {
		s.BuildWorkers = d.BuildWorkers
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = d.FetchTimeout
	}
	if s.MaxFetchRetries < 0 {
		s.MaxFetchRetries = 0
	}
	if s.RetryInitialInterval <= 0 {
		s.RetryInitialInterval = d.RetryInitialInterval
	}
	return s
}
