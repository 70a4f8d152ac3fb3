package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interfaces.
var (
	_ driven.ConfigStore   = (*ConfigStore)(nil)
	_ driven.SyncUnitStore = unitStore{}
)

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
// It also serves the [[units]] tables as the driven.SyncUnitStore.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
	units    []domain.SyncUnit
}

// NewConfigStore creates a config store for config.toml in configDir.
// If configDir is empty, defaults to ~/.sercha-mirror/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".sercha-mirror")
	}
	return OpenConfigStore(filepath.Join(configDir, "config.toml"))
}

// OpenConfigStore creates a config store for the given file.
// A missing file yields the default settings and no units.
func OpenConfigStore(filePath string) (*ConfigStore, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filePath,
		data:     make(map[string]any),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// ==================== Raw values ====================

// Get retrieves a configuration value by dotted key, e.g. "engine.batch_size".
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// GetString retrieves a string configuration value.
func (s *ConfigStore) GetString(key string) string {
	val, ok := s.Get(key)
	if !ok {
		return ""
	}

	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// GetInt retrieves an integer configuration value.
func (s *ConfigStore) GetInt(key string) int {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	// TOML integers are parsed as int64
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// GetBool retrieves a boolean configuration value, or def when unset.
func (s *ConfigStore) GetBool(key string, def bool) bool {
	val, ok := s.Get(key)
	if !ok {
		return def
	}

	b, ok := val.(bool)
	if !ok {
		return def
	}
	return b
}

// GetDuration retrieves a duration written as a Go duration string ("30s")
// or as integer seconds. Returns zero when unset or invalid.
func (s *ConfigStore) GetDuration(key string) time.Duration {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	case int64:
		return time.Duration(v) * time.Second
	default:
		return 0
	}
}

// ==================== driven.ConfigStore ====================

// Engine returns the sync engine settings with defaults for unset keys.
func (s *ConfigStore) Engine() domain.EngineSettings {
	d := domain.DefaultEngineSettings()
	e := domain.EngineSettings{
		BatchSize:            s.GetInt("engine.batch_size"),
		BuildWorkers:         s.GetInt("engine.build_workers"),
		FetchTimeout:         s.GetDuration("engine.fetch_timeout"),
		MaxFetchRetries:      d.MaxFetchRetries,
		RetryInitialInterval: s.GetDuration("engine.retry_initial_interval"),
		PermissionScan:       s.GetBool("engine.permission_scan", d.PermissionScan),
	}
	if _, ok := s.Get("engine.max_fetch_retries"); ok {
		e.MaxFetchRetries = s.GetInt("engine.max_fetch_retries")
	}
	return e.Normalize()
}

// Scheduler returns the scheduler configuration with defaults for unset keys.
func (s *ConfigStore) Scheduler() domain.SchedulerConfig {
	cfg := domain.DefaultSchedulerConfig()
	cfg.Enabled = s.GetBool("scheduler.enabled", cfg.Enabled)

	override := func(taskID, key string) {
		tc := cfg.TaskConfigs[taskID]
		if d := s.GetDuration("scheduler." + key); d > 0 {
			tc.Interval = d
		}
		cfg.TaskConfigs[taskID] = tc
	}
	override(domain.TaskIDConnectorSync, "sync_interval")
	override(domain.TaskIDOutboxFlush, "outbox_flush_interval")
	return cfg
}

// Storage returns the storage settings.
func (s *ConfigStore) Storage() domain.StorageSettings {
	backend := domain.CheckpointBackend(s.GetString("storage.checkpoints"))
	if backend == "" {
		backend = domain.CheckpointSQLite
	}
	return domain.StorageSettings{
		DataDir:             s.GetString("storage.data_dir"),
		Checkpoints:         backend,
		FirestoreProject:    s.GetString("storage.firestore_project"),
		FirestoreDatabase:   s.GetString("storage.firestore_database"),
		FirestoreCollection: s.GetString("storage.firestore_collection"),
	}
}

// Load reads configuration from the TOML file.
// On error the previously loaded configuration is kept.
func (s *ConfigStore) Load() error {
	raw, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.data = make(map[string]any)
		s.units = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}

	var loaded map[string]any
	if err := toml.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrConfiguration, s.filePath, err)
	}
	var doc document
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrConfiguration, s.filePath, err)
	}
	units, err := doc.syncUnits()
	if err != nil {
		return err
	}

	if loaded == nil {
		loaded = make(map[string]any)
	}
	delete(loaded, "units")
	data := flattenMap(loaded, "")

	next := &ConfigStore{data: data}
	storage := next.Storage()
	if err := storage.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.units = units
	return nil
}

// Save persists the current configuration to disk.
func (s *ConfigStore) Save() error {
	doc := newDocument(s.Engine(), s.Scheduler(), s.Storage())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units {
		doc.Units = append(doc.Units, newUnitDoc(u))
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// ==================== driven.SyncUnitStore ====================

// GetUnit retrieves a unit by ID.
func (s *ConfigStore) GetUnit(_ context.Context, id string) (*domain.SyncUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.units {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnitNotFound, id)
}

// List returns all configured units ordered by ID.
func (s *ConfigStore) List(_ context.Context) ([]domain.SyncUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.SyncUnit(nil), s.units...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Units returns a driven.SyncUnitStore view of the configured units.
func (s *ConfigStore) Units() driven.SyncUnitStore {
	return unitStore{s}
}

// unitStore adapts the ConfigStore, whose Get serves raw values, to driven.SyncUnitStore.
type unitStore struct {
	s *ConfigStore
}

func (u unitStore) Get(ctx context.Context, id string) (*domain.SyncUnit, error) {
	return u.s.GetUnit(ctx, id)
}

func (u unitStore) List(ctx context.Context) ([]domain.SyncUnit, error) {
	return u.s.List(ctx)
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}
