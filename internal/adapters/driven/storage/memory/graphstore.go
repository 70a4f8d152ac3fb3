package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Ensure GraphStore implements the interface.
var _ driven.GraphStore = (*GraphStore)(nil)

// GraphStore is an in-memory implementation of driven.GraphStore.
// It counts round trips and can inject commit failures and principal
// insert races for tests.
type GraphStore struct {
	mu          sync.Mutex
	records     map[string]domain.Record
	principals  map[string]domain.Principal
	relations   map[domain.Relation]struct{}
	permissions map[string][]domain.PermissionEdge
	outbox      []domain.RecordEvent

	queries      int
	recordWrites map[string]int
	commitErr    error
	racers       []domain.Principal
}

// NewGraphStore creates a new in-memory graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		records:      make(map[string]domain.Record),
		principals:   make(map[string]domain.Principal),
		relations:    make(map[domain.Relation]struct{}),
		permissions:  make(map[string][]domain.PermissionEdge),
		recordWrites: make(map[string]int),
	}
}

func recordKey(connector, externalID string) string {
	return connector + "\x00" + externalID
}

// FindRecordsByExternalID returns the existing records keyed by external id.
func (s *GraphStore) FindRecordsByExternalID(_ context.Context, connector string, externalIDs []string) (map[string]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	out := make(map[string]domain.Record)
	for _, id := range externalIDs {
		if r, ok := s.records[recordKey(connector, id)]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// FindPrincipals returns the existing principals keyed by normalized key.
func (s *GraphStore) FindPrincipals(_ context.Context, refs []domain.PrincipalRef) (map[string]domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	out := make(map[string]domain.Principal)
	for _, ref := range refs {
		key := ref.NormalizedKey()
		if p, ok := s.principals[key]; ok {
			out[key] = p
		}
	}
	return out, nil
}

// CreatePrincipals inserts principals, reporting keys that already exist.
func (s *GraphStore) CreatePrincipals(_ context.Context, principals []domain.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++

	for _, p := range s.racers {
		if _, ok := s.principals[p.Key]; !ok {
			s.principals[p.Key] = p
		}
	}
	s.racers = nil

	var dup []string
	for _, p := range principals {
		if _, ok := s.principals[p.Key]; ok {
			dup = append(dup, p.Key)
			continue
		}
		s.principals[p.Key] = p
	}
	if len(dup) > 0 {
		return &driven.DuplicateKeyError{Keys: dup}
	}
	return nil
}

// Begin starts a buffered transaction applied atomically on commit.
func (s *GraphStore) Begin(_ context.Context) (driven.GraphTx, error) {
	return &memTx{store: s}, nil
}

// PendingEvents returns unacknowledged outbox events in insertion order.
func (s *GraphStore) PendingEvents(_ context.Context, limit int) ([]domain.RecordEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.outbox)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]domain.RecordEvent(nil), s.outbox[:n]...), nil
}

// AckEvents removes events from the outbox.
func (s *GraphStore) AckEvents(_ context.Context, eventIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acked := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		acked[id] = true
	}
	kept := s.outbox[:0]
	for _, ev := range s.outbox {
		if !acked[ev.ID] {
			kept = append(kept, ev)
		}
	}
	s.outbox = kept
	return nil
}

// FailCommits makes every following commit fail with err. Nil clears it.
func (s *GraphStore) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// RaceOnCreate inserts the principals right before the next CreatePrincipals
// call, as a concurrent run would.
func (s *GraphStore) RaceOnCreate(principals ...domain.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.racers = append(s.racers, principals...)
}

// AddRecord seeds a record.
func (s *GraphStore) AddRecord(r domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(r.Connector, r.ExternalID)] = r
}

// AddPrincipal seeds a principal.
func (s *GraphStore) AddPrincipal(p domain.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[p.Key] = p
}

// Queries returns the number of read and principal-insert round trips.
func (s *GraphStore) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// ResetQueries zeroes the round trip counter.
func (s *GraphStore) ResetQueries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = 0
}

// RecordWrites returns how many times a record was written.
func (s *GraphStore) RecordWrites(connector, externalID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordWrites[recordKey(connector, externalID)]
}

// Records returns the records of a connector ordered by external id.
func (s *GraphStore) Records(connector string) []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Record
	for _, r := range s.records {
		if r.Connector == connector {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

// Principals returns every principal ordered by key.
func (s *GraphStore) Principals() []domain.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Principal, 0, len(s.principals))
	for _, p := range s.principals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Relations returns every edge.
func (s *GraphStore) Relations() []domain.Relation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Relation, 0, len(s.relations))
	for r := range s.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromID != out[j].FromID {
			return out[i].FromID < out[j].FromID
		}
		return out[i].ToID < out[j].ToID
	})
	return out
}

// Permissions returns the permission edges of a record.
func (s *GraphStore) Permissions(recordID string) []domain.PermissionEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PermissionEdge(nil), s.permissions[recordID]...)
}

type memTx struct {
	store     *GraphStore
	records   []domain.Record
	relations []domain.Relation
	perms     []permReplace
	events    []domain.RecordEvent
	done      bool
}

type permReplace struct {
	recordID string
	edges    []domain.PermissionEdge
}

func (t *memTx) UpsertRecords(_ context.Context, records []domain.Record) error {
	t.records = append(t.records, records...)
	return nil
}

func (t *memTx) CreateRelations(_ context.Context, relations []domain.Relation) error {
	t.relations = append(t.relations, relations...)
	return nil
}

func (t *memTx) ReplacePermissions(_ context.Context, recordID string, edges []domain.PermissionEdge) error {
	t.perms = append(t.perms, permReplace{recordID: recordID, edges: append([]domain.PermissionEdge(nil), edges...)})
	return nil
}

func (t *memTx) EnqueueEvents(_ context.Context, events []domain.RecordEvent) error {
	t.events = append(t.events, events...)
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return domain.ErrTransaction
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	for _, r := range t.records {
		key := recordKey(r.Connector, r.ExternalID)
		if cur, ok := s.records[key]; ok {
			r.ID = cur.ID
		}
		s.records[key] = r
		s.recordWrites[key]++
	}
	for _, rel := range t.relations {
		s.relations[rel] = struct{}{}
	}
	for _, p := range t.perms {
		s.permissions[p.recordID] = p.edges
	}
	s.outbox = append(s.outbox, t.events...)
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	return nil
}
