package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

func newTestServer(t *testing.T, ctrl *mockSyncController) *Server {
	t.Helper()
	server, err := NewServer(&Ports{Sync: ctrl})
	require.NoError(t, err)
	return server
}

func TestServer_LifecycleTools(t *testing.T) {
	ctx := context.Background()
	ctrl := newMockSyncController("mail")
	server := newTestServer(t, ctrl)

	_, out, err := server.handleStart(ctx, nil, UnitInput{UnitID: "mail"})
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", out.Status)

	_, out, err = server.handlePause(ctx, nil, UnitInput{UnitID: "mail"})
	require.NoError(t, err)
	assert.Equal(t, "PAUSED", out.Status)

	_, out, err = server.handleResume(ctx, nil, UnitInput{UnitID: "mail"})
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", out.Status)

	assert.Equal(t, []string{"start:mail", "pause:mail", "resume:mail"}, ctrl.calls)
}

func TestServer_handleStart_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing unit id", func(t *testing.T) {
		server := newTestServer(t, newMockSyncController())
		_, _, err := server.handleStart(ctx, nil, UnitInput{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("illegal transition", func(t *testing.T) {
		ctrl := newMockSyncController("mail")
		ctrl.err = domain.ErrInvalidTransition
		server := newTestServer(t, ctrl)
		_, _, err := server.handleStart(ctx, nil, UnitInput{UnitID: "mail"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("unknown unit", func(t *testing.T) {
		server := newTestServer(t, newMockSyncController())
		_, _, err := server.handlePause(ctx, nil, UnitInput{UnitID: "nope"})
		assert.ErrorIs(t, err, domain.ErrUnitNotFound)
	})
}

func TestServer_handleStatus(t *testing.T) {
	ctrl := newMockSyncController("mail")
	ctrl.states["mail"] = &domain.UnitState{
		UnitID:    "mail",
		Status:    domain.StatusFailed,
		LastError: "transaction failed",
		StartedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Progress:  domain.Progress{ScopesDone: 1, ScopesFailed: 1, Pages: 3, RecordsWritten: 42},
	}
	server := newTestServer(t, ctrl)

	_, out, err := server.handleStatus(context.Background(), nil, UnitInput{UnitID: "mail"})
	require.NoError(t, err)
	assert.Equal(t, "FAILED", out.Status)
	assert.Equal(t, "transaction failed", out.LastError)
	assert.Equal(t, "2024-05-01T08:00:00Z", out.StartedAt)
	assert.Empty(t, out.UpdatedAt)
	assert.Equal(t, 42, out.Progress.RecordsWritten)
	assert.Equal(t, 1, out.Progress.ScopesFailed)
}

func TestServer_handleReindex(t *testing.T) {
	ctx := context.Background()

	t.Run("re-fetches items of a scope", func(t *testing.T) {
		ctrl := newMockSyncController("code")
		ctrl.reindex = &domain.BatchResult{
			RecordsWritten: 1,
			Unchanged:      1,
			Events:         []domain.RecordEvent{{ID: "e1"}},
		}
		server := newTestServer(t, ctrl)

		_, out, err := server.handleReindex(ctx, nil, ReindexInput{
			UnitID:      "code",
			Scope:       "github/issue/acme/api",
			ExternalIDs: []string{"acme/api#1", "acme/api#2"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, out.RecordsWritten)
		assert.Equal(t, 1, out.Unchanged)
		assert.Equal(t, 1, out.Events)
		assert.Equal(t, domain.SyncScope{Connector: "github", EntityType: "issue", Key: "acme/api"}, ctrl.reindexScope)
		assert.Len(t, ctrl.reindexIDs, 2)
	})

	t.Run("rejects malformed scope", func(t *testing.T) {
		server := newTestServer(t, newMockSyncController("code"))
		_, _, err := server.handleReindex(ctx, nil, ReindexInput{UnitID: "code", Scope: "github", ExternalIDs: []string{"x"}})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("rejects empty id list", func(t *testing.T) {
		server := newTestServer(t, newMockSyncController("code"))
		_, _, err := server.handleReindex(ctx, nil, ReindexInput{UnitID: "code", Scope: "github/issue/acme/api"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("returns controller error", func(t *testing.T) {
		ctrl := newMockSyncController("code")
		ctrl.err = errors.New("fetch failed")
		server := newTestServer(t, ctrl)
		_, _, err := server.handleReindex(ctx, nil, ReindexInput{UnitID: "code", Scope: "github/issue/acme/api", ExternalIDs: []string{"x"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch failed")
	})
}
