package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

const sampleConfig = `
[engine]
batch_size = 25
build_workers = 2
fetch_timeout = "10s"
max_fetch_retries = 0
retry_initial_interval = 2
permission_scan = false

[scheduler]
enabled = true
sync_interval = "15m"

[storage]
data_dir = "/var/lib/mirror"

[[units]]
id = "work-mail"
connector = "gmail"
name = "Work mailbox"
token_env = "GMAIL_TOKEN"
modified_after = 2024-01-01T00:00:00Z

[units.config]
labels = ["INBOX", "SENT"]
attachments = true

[[units]]
id = "acme-issues"
connector = "github"
scopes = ["github/issue/acme/api"]
token_env = "GITHUB_TOKEN"

[units.config]
repos = "acme/api"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_WithNestedDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b")

	store, err := NewConfigStore(nested)
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(nested, "config.toml"), store.Path())
}

func TestConfigStore_Load_NonExistent(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultEngineSettings(), store.Engine())
	assert.Equal(t, domain.CheckpointSQLite, store.Storage().Checkpoints)

	units, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestConfigStore_Engine(t *testing.T) {
	store, err := OpenConfigStore(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	e := store.Engine()
	assert.Equal(t, 25, e.BatchSize)
	assert.Equal(t, 2, e.BuildWorkers)
	assert.Equal(t, 10*time.Second, e.FetchTimeout)
	assert.Equal(t, 0, e.MaxFetchRetries)
	assert.Equal(t, 2*time.Second, e.RetryInitialInterval)
	assert.False(t, e.PermissionScan)
}

func TestConfigStore_Engine_Defaults(t *testing.T) {
	store, err := OpenConfigStore(writeConfig(t, "[engine]\nbatch_size = -1\n"))
	require.NoError(t, err)

	d := domain.DefaultEngineSettings()
	e := store.Engine()
	assert.Equal(t, d.BatchSize, e.BatchSize)
	assert.Equal(t, d.MaxFetchRetries, e.MaxFetchRetries)
	assert.True(t, e.PermissionScan)
}

func TestConfigStore_Scheduler(t *testing.T) {
	store, err := OpenConfigStore(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	cfg := store.Scheduler()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.GetTaskConfig(domain.TaskIDConnectorSync).Interval)

	def := domain.DefaultSchedulerConfig()
	assert.Equal(t, def.GetTaskConfig(domain.TaskIDOutboxFlush).Interval,
		cfg.GetTaskConfig(domain.TaskIDOutboxFlush).Interval)
}

func TestConfigStore_Storage(t *testing.T) {
	store, err := OpenConfigStore(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	st := store.Storage()
	assert.Equal(t, "/var/lib/mirror", st.DataDir)
	assert.Equal(t, domain.CheckpointSQLite, st.Checkpoints)
}

func TestConfigStore_Storage_FirestoreWithoutProject(t *testing.T) {
	_, err := OpenConfigStore(writeConfig(t, "[storage]\ncheckpoints = \"firestore\"\n"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestConfigStore_Units(t *testing.T) {
	store, err := OpenConfigStore(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	ctx := context.Background()

	units, err := store.Units().List(ctx)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "acme-issues", units[0].ID)
	assert.Equal(t, "work-mail", units[1].ID)

	mail, err := store.Units().Get(ctx, "work-mail")
	require.NoError(t, err)
	assert.Equal(t, "gmail", mail.Connector)
	assert.Equal(t, "Work mailbox", mail.DisplayName())
	assert.Equal(t, "GMAIL_TOKEN", mail.TokenEnv)
	assert.Equal(t, "INBOX,SENT", mail.Config["labels"])
	assert.Equal(t, "true", mail.Config["attachments"])
	require.NotNil(t, mail.Window)
	require.NotNil(t, mail.Window.ModifiedAfter)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), mail.Window.ModifiedAfter.UTC())
	assert.Nil(t, mail.Window.ModifiedBefore)

	issues, err := store.Units().Get(ctx, "acme-issues")
	require.NoError(t, err)
	assert.Nil(t, issues.Window)
	assert.Equal(t, []string{"github/issue/acme/api"}, issues.Scopes)
	assert.Equal(t, "acme/api", issues.Config["repos"])
}

func TestConfigStore_Units_NotFound(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Units().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrUnitNotFound)
}

func TestConfigStore_Units_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", "[[units]]\nconnector = \"gmail\"\n"},
		{"missing connector", "[[units]]\nid = \"a\"\n"},
		{"duplicate id", "[[units]]\nid = \"a\"\nconnector = \"gmail\"\n[[units]]\nid = \"a\"\nconnector = \"notion\"\n"},
		{"bad scope", "[[units]]\nid = \"a\"\nconnector = \"gmail\"\nscopes = [\"gmail\"]\n"},
		{"inverted window", "[[units]]\nid = \"a\"\nconnector = \"gmail\"\n" +
			"modified_after = 2024-02-01T00:00:00Z\nmodified_before = 2024-01-01T00:00:00Z\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenConfigStore(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestConfigStore_Load_InvalidTOML(t *testing.T) {
	_, err := OpenConfigStore(writeConfig(t, "this is not [ toml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestConfigStore_Load_KeepsPreviousOnError(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	store, err := OpenConfigStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[[units]]\nid = \"x\"\n"), 0600))
	assert.ErrorIs(t, store.Load(), domain.ErrConfiguration)

	units, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, units, 2)
	assert.Equal(t, 25, store.Engine().BatchSize)
}

func TestConfigStore_SaveReload_PreservesData(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	store, err := OpenConfigStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := OpenConfigStore(path)
	require.NoError(t, err)
	assert.Equal(t, store.Engine(), reloaded.Engine())
	assert.Equal(t, store.Storage(), reloaded.Storage())
	assert.Equal(t, store.Scheduler().Enabled, reloaded.Scheduler().Enabled)

	before, err := store.List(context.Background())
	require.NoError(t, err)
	after, err := reloaded.List(context.Background())
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Config, after[i].Config)
		assert.Equal(t, before[i].Scopes, after[i].Scopes)
	}
}

func TestConfigStore_GetDuration(t *testing.T) {
	store, err := OpenConfigStore(writeConfig(t, "[x]\na = \"1m\"\nb = 3\nc = \"soon\"\n"))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, store.GetDuration("x.a"))
	assert.Equal(t, 3*time.Second, store.GetDuration("x.b"))
	assert.Zero(t, store.GetDuration("x.c"))
	assert.Zero(t, store.GetDuration("x.missing"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	store, err := OpenConfigStore(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Load()
		}()
		go func() {
			defer wg.Done()
			_ = store.Engine()
			_, _ = store.List(context.Background())
		}()
	}
	wg.Wait()
}

func TestConfigStore_Watch(t *testing.T) {
	path := writeConfig(t, "[engine]\nbatch_size = 10\n")
	store, err := OpenConfigStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls sync.WaitGroup
	calls.Add(1)
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func() { once.Do(calls.Done) })
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nbatch_size = 20\n"), 0600))

	assert.Eventually(t, func() bool {
		return store.Engine().BatchSize == 20
	}, 5*time.Second, 20*time.Millisecond)
	calls.Wait()

	cancel()
	assert.NoError(t, <-done)
}
