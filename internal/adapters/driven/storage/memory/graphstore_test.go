package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

func TestGraphStore_UpsertPreservesLocalID(t *testing.T) {
	store := NewGraphStore()
	ctx := context.Background()
	store.AddRecord(domain.Record{ID: "local-1", Connector: "gmail", ExternalID: "m1", ExternalRevisionID: "1"})

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertRecords(ctx, []domain.Record{
		{ID: "other", Connector: "gmail", ExternalID: "m1", ExternalRevisionID: "2"},
	}))
	require.NoError(t, tx.Commit())

	found, err := store.FindRecordsByExternalID(ctx, "gmail", []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "local-1", found["m1"].ID)
	assert.Equal(t, "2", found["m1"].ExternalRevisionID)
	assert.Equal(t, 1, store.RecordWrites("gmail", "m1"))
}

func TestGraphStore_CommitFailureLeavesNoTrace(t *testing.T) {
	store := NewGraphStore()
	ctx := context.Background()
	store.FailCommits(errors.New("disk full"))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertRecords(ctx, []domain.Record{{ID: "r1", Connector: "gmail", ExternalID: "m1"}}))
	require.NoError(t, tx.EnqueueEvents(ctx, []domain.RecordEvent{{ID: "e1"}}))
	assert.Error(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	assert.Empty(t, store.Records("gmail"))
	pending, err := store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGraphStore_CreatePrincipalsReportsRace(t *testing.T) {
	store := NewGraphStore()
	ctx := context.Background()
	store.RaceOnCreate(domain.Principal{ID: "p-race", Kind: domain.PrincipalUser, Key: "ada@example.com"})

	err := store.CreatePrincipals(ctx, []domain.Principal{
		{ID: "p1", Kind: domain.PrincipalUser, Key: "ada@example.com"},
		{ID: "p2", Kind: domain.PrincipalUser, Key: "bob@example.com"},
	})

	var dup *driven.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.Equal(t, []string{"ada@example.com"}, dup.Keys)

	found, err := store.FindPrincipals(ctx, []domain.PrincipalRef{
		{Kind: domain.PrincipalUser, Key: "ADA@example.com"},
		{Kind: domain.PrincipalUser, Key: "bob@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "p-race", found["ada@example.com"].ID)
	assert.Equal(t, "p2", found["bob@example.com"].ID)
	assert.Equal(t, 2, store.Queries())
}

func TestGraphStore_OutboxAck(t *testing.T) {
	store := NewGraphStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	require.NoError(t, tx.EnqueueEvents(ctx, []domain.RecordEvent{
		{ID: "e1", At: time.Now()}, {ID: "e2"}, {ID: "e3"},
	}))
	require.NoError(t, tx.Commit())

	pending, err := store.PendingEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "e1", pending[0].ID)

	require.NoError(t, store.AckEvents(ctx, []string{"e1", "e3"}))
	pending, _ = store.PendingEvents(ctx, 0)
	require.Len(t, pending, 1)
	assert.Equal(t, "e2", pending[0].ID)
}

func TestGraphStore_RelationsAreIdempotent(t *testing.T) {
	store := NewGraphStore()
	ctx := context.Background()
	rel := domain.Relation{FromID: "a", ToID: "b", Type: domain.RelationAttachmentOf}

	for i := 0; i < 2; i++ {
		tx, _ := store.Begin(ctx)
		require.NoError(t, tx.CreateRelations(ctx, []domain.Relation{rel}))
		require.NoError(t, tx.Commit())
	}

	assert.Len(t, store.Relations(), 1)
}
