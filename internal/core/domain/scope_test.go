package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncScope_StringRoundTrip(t *testing.T) {
	scope := SyncScope{Connector: "github", EntityType: "issue", Key: "octo/hello-world"}
	assert.Equal(t, "github/issue/octo/hello-world", scope.String())

	parsed, err := ParseSyncScope(scope.String())
	require.NoError(t, err)
	assert.Equal(t, scope, parsed)
}

func TestParseSyncScope_Invalid(t *testing.T) {
	for _, s := range []string{"", "gmail", "gmail/thread", "gmail//x", "/thread/x"} {
		_, err := ParseSyncScope(s)
		assert.ErrorIs(t, err, ErrInvalidInput, s)
	}
}

func TestSyncScope_IsZero(t *testing.T) {
	assert.True(t, SyncScope{}.IsZero())
	assert.False(t, SyncScope{Key: "x"}.IsZero())
}

func TestPermissionAuditScope(t *testing.T) {
	scope := PermissionAuditScope("notion", "acme")
	assert.Equal(t, "notion/permission-audit/acme", scope.String())
}

func TestCheckpoint_Resumable(t *testing.T) {
	var nilCP *Checkpoint
	assert.False(t, nilCP.Resumable())
	assert.False(t, (&Checkpoint{Watermark: time.Now()}).Resumable())
	assert.True(t, (&Checkpoint{Cursor: "c1"}).Resumable())
	assert.True(t, (&Checkpoint{Offset: 50}).Resumable())
}

func TestCheckpoint_Advance(t *testing.T) {
	scope := SyncScope{Connector: "gmail", EntityType: "message", Key: "me"}
	since := tsp("2024-01-01T00:00:00Z")

	t.Run("mid pagination keeps position and bound", func(t *testing.T) {
		var prev *Checkpoint
		cp := prev.Advance(scope, PageStart{Cursor: "c2"}, since, ts("2024-01-05T00:00:00Z"))

		assert.Equal(t, "c2", cp.Cursor)
		assert.Equal(t, since, cp.Since)
		assert.True(t, cp.Resumable())
	})

	t.Run("exhausted clears position", func(t *testing.T) {
		prev := &Checkpoint{Scope: scope, Cursor: "c3", Since: since}
		cp := prev.Advance(scope, PageStart{}, since, ts("2024-01-09T00:00:00Z"))

		assert.Empty(t, cp.Cursor)
		assert.Nil(t, cp.Since)
		assert.False(t, cp.Resumable())
	})

	t.Run("watermark never moves backwards", func(t *testing.T) {
		prev := &Checkpoint{Scope: scope, Watermark: ts("2024-03-01T00:00:00Z")}
		cp := prev.Advance(scope, PageStart{}, nil, ts("2024-02-01T00:00:00Z"))

		assert.True(t, cp.Watermark.Equal(ts("2024-03-01T00:00:00Z")))
	})
}
