package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Resolution is the result of a bulk lookup.
type Resolution struct {
	// Records are the existing records keyed by external id.
	Records map[string]domain.Record

	// Missing are the external ids without a local record.
	Missing map[string]struct{}

	// Principals are keyed by normalized key, including those created by the lookup.
	Principals map[string]domain.Principal

	// Queries is the number of store round trips issued.
	Queries int
}

// Resolver performs batched identity lookups against the graph store.
// A batch costs one record query, one principal query and at most one bulk
// insert, independent of its size.
type Resolver struct {
	store driven.GraphStore
	newID func() string
}

// NewResolver creates a resolver.
func NewResolver(store driven.GraphStore) *Resolver {
	return &Resolver{store: store, newID: uuid.NewString}
}

// Resolve looks up records and principals, creating missing principals.
func (r *Resolver) Resolve(ctx context.Context, connector string, externalIDs []string, refs []domain.PrincipalRef) (*Resolution, error) {
	return r.resolve(ctx, connector, externalIDs, refs, true)
}

// ResolveExisting looks up records and principals without creating anything.
func (r *Resolver) ResolveExisting(ctx context.Context, connector string, externalIDs []string, refs []domain.PrincipalRef) (*Resolution, error) {
	return r.resolve(ctx, connector, externalIDs, refs, false)
}

func (r *Resolver) resolve(ctx context.Context, connector string, externalIDs []string, refs []domain.PrincipalRef, create bool) (*Resolution, error) {
	res := &Resolution{
		Records:    map[string]domain.Record{},
		Missing:    map[string]struct{}{},
		Principals: map[string]domain.Principal{},
	}

	ids := uniqueIDs(externalIDs)
	if len(ids) > 0 {
		found, err := r.store.FindRecordsByExternalID(ctx, connector, ids)
		res.Queries++
		if err != nil {
			return nil, fmt.Errorf("find records: %w", err)
		}
		for _, id := range ids {
			if rec, ok := found[id]; ok {
				res.Records[id] = rec
			} else {
				res.Missing[id] = struct{}{}
			}
		}
	}

	principals := uniqueRefs(refs)
	if len(principals) == 0 {
		return res, nil
	}
	found, err := r.store.FindPrincipals(ctx, principals)
	res.Queries++
	if err != nil {
		return nil, fmt.Errorf("find principals: %w", err)
	}
	for k, p := range found {
		res.Principals[k] = p
	}
	if !create {
		return res, nil
	}

	var fresh []domain.Principal
	for _, ref := range principals {
		key := ref.NormalizedKey()
		if _, ok := res.Principals[key]; ok {
			continue
		}
		kind := ref.Kind
		if kind == "" {
			kind = domain.PrincipalUser
		}
		fresh = append(fresh, domain.Principal{
			ID:          r.newID(),
			Kind:        kind,
			Key:         key,
			DisplayName: ref.DisplayName,
		})
	}
	if len(fresh) == 0 {
		return res, nil
	}

	err = r.store.CreatePrincipals(ctx, fresh)
	res.Queries++
	var dup *driven.DuplicateKeyError
	switch {
	case err == nil:
	case errors.As(err, &dup):
		// A concurrent run inserted some keys first; use its rows.
		conflicts := make(map[string]bool, len(dup.Keys))
		for _, k := range dup.Keys {
			conflicts[k] = true
		}
		for _, p := range fresh {
			if !conflicts[p.Key] {
				continue
			}
			one, err := r.store.FindPrincipals(ctx, []domain.PrincipalRef{{Kind: p.Kind, Key: p.Key}})
			res.Queries++
			if err != nil {
				return nil, fmt.Errorf("refetch principal %s: %w", p.Key, err)
			}
			if existing, ok := one[p.Key]; ok {
				res.Principals[p.Key] = existing
			}
		}
		fresh = withoutKeys(fresh, conflicts)
	default:
		return nil, fmt.Errorf("create principals: %w", err)
	}
	for _, p := range fresh {
		res.Principals[p.Key] = p
	}
	return res, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func uniqueRefs(refs []domain.PrincipalRef) []domain.PrincipalRef {
	idx := make(map[string]int, len(refs))
	out := make([]domain.PrincipalRef, 0, len(refs))
	for _, ref := range refs {
		key := ref.NormalizedKey()
		if key == "" {
			continue
		}
		if i, ok := idx[key]; ok {
			if out[i].DisplayName == "" {
				out[i].DisplayName = ref.DisplayName
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, ref)
	}
	return out
}

func withoutKeys(ps []domain.Principal, keys map[string]bool) []domain.Principal {
	out := ps[:0:0]
	for _, p := range ps {
		if !keys[p.Key] {
			out = append(out, p)
		}
	}
	return out
}
