// Package firestore stores sync checkpoints in a Cloud Firestore collection,
// for deployments where several hosts share one mirror.
package firestore

import (
	"context"
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// DefaultCollection holds checkpoint documents when no collection is configured.
const DefaultCollection = "sercha_mirror_checkpoints"

// checkpointDoc is the Firestore document representation of domain.Checkpoint.
type checkpointDoc struct {
	Connector  string     `firestore:"connector"`
	EntityType string     `firestore:"entity_type"`
	Key        string     `firestore:"key"`
	Cursor     string     `firestore:"cursor"`
	Offset     int        `firestore:"offset"`
	Since      *time.Time `firestore:"since"`
	Watermark  time.Time  `firestore:"watermark"`
	UpdatedAt  time.Time  `firestore:"updated_at"`
}

func toCheckpointDoc(cp domain.Checkpoint) *checkpointDoc {
	return &checkpointDoc{
		Connector:  cp.Scope.Connector,
		EntityType: cp.Scope.EntityType,
		Key:        cp.Scope.Key,
		Cursor:     cp.Cursor,
		Offset:     cp.Offset,
		Since:      cp.Since,
		Watermark:  cp.Watermark.UTC(),
		UpdatedAt:  cp.UpdatedAt.UTC(),
	}
}

func fromCheckpointDoc(d *checkpointDoc) *domain.Checkpoint {
	return &domain.Checkpoint{
		Scope:     domain.SyncScope{Connector: d.Connector, EntityType: d.EntityType, Key: d.Key},
		Cursor:    d.Cursor,
		Offset:    d.Offset,
		Since:     d.Since,
		Watermark: d.Watermark,
		UpdatedAt: d.UpdatedAt,
	}
}

// CheckpointStore implements driven.CheckpointStore on Firestore.
type CheckpointStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// Option configures a CheckpointStore.
type Option func(*CheckpointStore)

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(s *CheckpointStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// New connects to the Firestore database of a project.
// An empty databaseID selects the default database.
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*CheckpointStore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	s := &CheckpointStore{client: client, collection: DefaultCollection, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the client.
func (s *CheckpointStore) Close() error {
	return s.client.Close()
}

func (s *CheckpointStore) doc(scope domain.SyncScope) *firestore.DocumentRef {
	// Document IDs cannot contain slashes; the scope key often does (owner/repo).
	return s.client.Collection(s.collection).Doc(docID(scope))
}

// Get retrieves the checkpoint of a scope.
func (s *CheckpointStore) Get(ctx context.Context, scope domain.SyncScope) (*domain.Checkpoint, error) {
	snap, err := s.doc(scope).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, goerr.Wrap(err, "failed to get checkpoint", goerr.V("scope", scope.String()))
	}

	var d checkpointDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal checkpoint", goerr.V("scope", scope.String()))
	}
	return fromCheckpointDoc(&d), nil
}

// Save stores a checkpoint. The watermark comparison and the write run in one
// transaction, so concurrent hosts cannot move a scope backwards.
func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	if cp.Scope.IsZero() {
		return goerr.Wrap(domain.ErrInvalidInput, "checkpoint without scope")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	ref := s.doc(cp.Scope)

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to read checkpoint")
		}
		if err == nil {
			var cur checkpointDoc
			if err := snap.DataTo(&cur); err != nil {
				return goerr.Wrap(err, "failed to unmarshal checkpoint")
			}
			if cur.Watermark.After(cp.Watermark) {
				return domain.ErrStaleCheckpoint
			}
		}
		return tx.Set(ref, toCheckpointDoc(cp))
	})
	if errors.Is(err, domain.ErrStaleCheckpoint) {
		return goerr.Wrap(err, "checkpoint watermark moved backwards", goerr.V("scope", cp.Scope.String()))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to save checkpoint", goerr.V("scope", cp.Scope.String()))
	}
	return nil
}

// Reset removes the checkpoint of a scope.
func (s *CheckpointStore) Reset(ctx context.Context, scope domain.SyncScope) error {
	if _, err := s.doc(scope).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return goerr.Wrap(err, "failed to delete checkpoint", goerr.V("scope", scope.String()))
	}
	return nil
}

// List returns every checkpoint of a connector ordered by scope.
func (s *CheckpointStore) List(ctx context.Context, connector string) ([]domain.Checkpoint, error) {
	q := s.client.Collection(s.collection).Query
	if connector != "" {
		q = q.Where("connector", "==", connector)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	out := make([]domain.Checkpoint, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate checkpoints")
		}

		var d checkpointDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal checkpoint", goerr.V("id", snap.Ref.ID))
		}
		out = append(out, *fromCheckpointDoc(&d))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Scope.String() < out[j].Scope.String() })
	return out, nil
}
