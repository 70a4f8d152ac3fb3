package domain

import "fmt"

// CheckpointBackend selects where checkpoints are stored.
type CheckpointBackend string

const (
	// CheckpointSQLite stores checkpoints next to the graph.
	CheckpointSQLite CheckpointBackend = "sqlite"

	// CheckpointFirestore stores checkpoints in a Firestore collection.
	CheckpointFirestore CheckpointBackend = "firestore"
)

// StorageSettings configures persistence.
type StorageSettings struct {
	// DataDir holds the sqlite database.
	DataDir string

	// Checkpoints selects the checkpoint backend.
	Checkpoints CheckpointBackend

	// FirestoreProject is the GCP project of the Firestore backend.
	FirestoreProject string

	// FirestoreDatabase is the Firestore database ID. Empty means "(default)".
	FirestoreDatabase string

	// FirestoreCollection is the collection holding checkpoint documents.
	FirestoreCollection string
}

// Validate checks that the selected backend is fully configured.
func (s *StorageSettings) Validate() error {
	switch s.Checkpoints {
	case "", CheckpointSQLite:
		return nil
	case CheckpointFirestore:
		if s.FirestoreProject == "" {
			return fmt.Errorf("%w: firestore checkpoints need a project", ErrConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown checkpoint backend %q", ErrConfiguration, s.Checkpoints)
	}
}
