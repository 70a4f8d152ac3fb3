package driven

import "github.com/custodia-labs/sercha-mirror/internal/core/domain"

// ConfigStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and validation.
type ConfigStore interface {
	// Engine returns the sync engine settings.
	Engine() domain.EngineSettings

	// Scheduler returns the scheduler configuration.
	Scheduler() domain.SchedulerConfig

	// Storage returns the storage settings.
	Storage() domain.StorageSettings

	// Load reads configuration from storage.
	// Invalid configuration wraps domain.ErrConfiguration.
	Load() error

	// Save persists the current configuration to storage.
	Save() error

	// Path returns the configuration file path.
	Path() string
}
