package file

import (
	"fmt"
	"strconv"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// document is the typed shape of config.toml.
type document struct {
	Engine    engineDoc    `toml:"engine"`
	Scheduler schedulerDoc `toml:"scheduler"`
	Storage   storageDoc   `toml:"storage"`
	Units     []unitDoc    `toml:"units"`
}

type engineDoc struct {
	BatchSize            int    `toml:"batch_size"`
	BuildWorkers         int    `toml:"build_workers"`
	FetchTimeout         string `toml:"fetch_timeout"`
	MaxFetchRetries      int    `toml:"max_fetch_retries"`
	RetryInitialInterval string `toml:"retry_initial_interval"`
	PermissionScan       bool   `toml:"permission_scan"`
}

type schedulerDoc struct {
	Enabled             bool   `toml:"enabled"`
	SyncInterval        string `toml:"sync_interval"`
	OutboxFlushInterval string `toml:"outbox_flush_interval"`
}

type storageDoc struct {
	DataDir             string `toml:"data_dir,omitempty"`
	Checkpoints         string `toml:"checkpoints"`
	FirestoreProject    string `toml:"firestore_project,omitempty"`
	FirestoreDatabase   string `toml:"firestore_database,omitempty"`
	FirestoreCollection string `toml:"firestore_collection,omitempty"`
}

type unitDoc struct {
	ID             string         `toml:"id"`
	Connector      string         `toml:"connector"`
	Name           string         `toml:"name,omitempty"`
	Scopes         []string       `toml:"scopes,omitempty"`
	ModifiedAfter  *time.Time     `toml:"modified_after,omitempty"`
	ModifiedBefore *time.Time     `toml:"modified_before,omitempty"`
	TokenEnv       string         `toml:"token_env,omitempty"`
	Config         map[string]any `toml:"config,omitempty"`
}

func newDocument(e domain.EngineSettings, sc domain.SchedulerConfig, st domain.StorageSettings) document {
	return document{
		Engine: engineDoc{
			BatchSize:            e.BatchSize,
			BuildWorkers:         e.BuildWorkers,
			FetchTimeout:         e.FetchTimeout.String(),
			MaxFetchRetries:      e.MaxFetchRetries,
			RetryInitialInterval: e.RetryInitialInterval.String(),
			PermissionScan:       e.PermissionScan,
		},
		Scheduler: schedulerDoc{
			Enabled:             sc.Enabled,
			SyncInterval:        sc.GetTaskConfig(domain.TaskIDConnectorSync).Interval.String(),
			OutboxFlushInterval: sc.GetTaskConfig(domain.TaskIDOutboxFlush).Interval.String(),
		},
		Storage: storageDoc{
			DataDir:             st.DataDir,
			Checkpoints:         string(st.Checkpoints),
			FirestoreProject:    st.FirestoreProject,
			FirestoreDatabase:   st.FirestoreDatabase,
			FirestoreCollection: st.FirestoreCollection,
		},
	}
}

func newUnitDoc(u domain.SyncUnit) unitDoc {
	d := unitDoc{
		ID:        u.ID,
		Connector: u.Connector,
		Name:      u.Name,
		Scopes:    u.Scopes,
		TokenEnv:  u.TokenEnv,
	}
	if u.Window != nil {
		d.ModifiedAfter = u.Window.ModifiedAfter
		d.ModifiedBefore = u.Window.ModifiedBefore
	}
	if len(u.Config) > 0 {
		d.Config = make(map[string]any, len(u.Config))
		for k, v := range u.Config {
			d.Config[k] = v
		}
	}
	return d
}

// syncUnits converts and validates the [[units]] tables.
func (d *document) syncUnits() ([]domain.SyncUnit, error) {
	units := make([]domain.SyncUnit, 0, len(d.Units))
	seen := make(map[string]bool, len(d.Units))
	for _, ud := range d.Units {
		u := domain.SyncUnit{
			ID:        ud.ID,
			Connector: ud.Connector,
			Name:      ud.Name,
			Scopes:    ud.Scopes,
			TokenEnv:  ud.TokenEnv,
			Config:    make(map[string]string, len(ud.Config)),
		}
		if ud.ModifiedAfter != nil || ud.ModifiedBefore != nil {
			u.Window = &domain.TimeWindow{ModifiedAfter: ud.ModifiedAfter, ModifiedBefore: ud.ModifiedBefore}
		}
		for k, v := range ud.Config {
			u.Config[k] = configValue(v)
		}
		if err := u.Validate(); err != nil {
			return nil, err
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("%w: duplicate unit id %s", domain.ErrConfiguration, u.ID)
		}
		seen[u.ID] = true
		units = append(units, u)
	}
	return units, nil
}

// configValue renders a TOML value as the string connectors expect.
// Arrays become comma separated lists.
func configValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []any:
		out := ""
		for i, item := range x {
			if i > 0 {
				out += ","
			}
			out += configValue(item)
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}
