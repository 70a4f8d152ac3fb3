package services

import (
	"slices"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// AuditMatcher extracts the identifiers whose permissions may have changed
// from one audit feed entry.
type AuditMatcher interface {
	Match(ev domain.AuditEvent) []string
}

// AuditMatcherFunc adapts a function to AuditMatcher.
type AuditMatcherFunc func(ev domain.AuditEvent) []string

// Match calls f.
func (f AuditMatcherFunc) Match(ev domain.AuditEvent) []string {
	return f(ev)
}

// ContentPermissionMatcher matches entries that reference both a content
// object and its container, as content-level permission changes do.
type ContentPermissionMatcher struct {
	ContentTypes   []string
	ContainerTypes []string
}

// DefaultContentPermissionMatcher matches page and blog entries within a space.
func DefaultContentPermissionMatcher() ContentPermissionMatcher {
	return ContentPermissionMatcher{
		ContentTypes:   []string{"page", "blogpost"},
		ContainerTypes: []string{"space"},
	}
}

// Match returns the content object ids when a container object is present.
func (m ContentPermissionMatcher) Match(ev domain.AuditEvent) []string {
	var content []string
	container := false
	for _, obj := range ev.Objects {
		switch {
		case slices.Contains(m.ContentTypes, obj.Type):
			if obj.ID != "" {
				content = append(content, obj.ID)
			}
		case slices.Contains(m.ContainerTypes, obj.Type):
			container = true
		}
	}
	if !container {
		return nil
	}
	return content
}

// KindMatcher matches entries by their kind label, for feeds that name
// permission events explicitly.
type KindMatcher struct {
	// Kinds are the accepted event kinds.
	Kinds []string

	// ObjectTypes restricts the returned objects. Empty returns every object.
	ObjectTypes []string
}

// Match returns the object ids of a matching entry.
func (m KindMatcher) Match(ev domain.AuditEvent) []string {
	if !slices.Contains(m.Kinds, ev.Kind) {
		return nil
	}
	var ids []string
	for _, obj := range ev.Objects {
		if obj.ID == "" {
			continue
		}
		if len(m.ObjectTypes) == 0 || slices.Contains(m.ObjectTypes, obj.Type) {
			ids = append(ids, obj.ID)
		}
	}
	return ids
}
