package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// --- Shared test doubles ---

// mockConnector serves scripted pages keyed by scope key and position.
type mockConnector struct {
	mu       sync.Mutex
	connType string
	caps     driven.ConnectorCapabilities
	scopes   []domain.SyncScope
	pages    map[string]*domain.RawPage
	failures map[string][]error
	items    map[string]domain.ExternalItem
	requests []domain.PageRequest
	closed   bool

	// onFetch runs before a page is served, outside the lock.
	onFetch func(scope domain.SyncScope, req domain.PageRequest)

	audit      []domain.AuditEvent
	auditCalls int
	grants     map[string][]domain.Grant
}

func newMockConnector(connType string, caps driven.ConnectorCapabilities, scopes ...domain.SyncScope) *mockConnector {
	return &mockConnector{
		connType: connType,
		caps:     caps,
		scopes:   scopes,
		pages:    make(map[string]*domain.RawPage),
		failures: make(map[string][]error),
		items:    make(map[string]domain.ExternalItem),
		grants:   make(map[string][]domain.Grant),
	}
}

func (m *mockConnector) key(scope domain.SyncScope, start domain.PageStart) string {
	if m.caps.PageMode == domain.PageModeOffset {
		return scope.Key + "@" + strconv.Itoa(start.Offset)
	}
	return scope.Key + "@" + start.Cursor
}

// setPage scripts the page served at a cursor (cursor mode) or offset.
func (m *mockConnector) setPage(scope domain.SyncScope, start domain.PageStart, page *domain.RawPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[m.key(scope, start)] = page
}

// failAt makes the next fetches at a position fail with errs, in order.
func (m *mockConnector) failAt(scope domain.SyncScope, start domain.PageStart, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(scope, start)
	m.failures[k] = append(m.failures[k], errs...)
}

func (m *mockConnector) Type() string                                { return m.connType }
func (m *mockConnector) Capabilities() driven.ConnectorCapabilities { return m.caps }

func (m *mockConnector) Scopes(_ context.Context) ([]domain.SyncScope, error) {
	return m.scopes, nil
}

func (m *mockConnector) FetchPage(_ context.Context, scope domain.SyncScope, req domain.PageRequest) (*domain.RawPage, error) {
	if m.onFetch != nil {
		m.onFetch(scope, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	k := m.key(scope, req.PageStart)
	if errs := m.failures[k]; len(errs) > 0 {
		m.failures[k] = errs[1:]
		return nil, errs[0]
	}
	page, ok := m.pages[k]
	if !ok {
		return &domain.RawPage{}, nil
	}
	cp := *page
	return &cp, nil
}

func (m *mockConnector) FetchItems(_ context.Context, _ domain.SyncScope, ids []string) ([]domain.ExternalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ExternalItem
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockConnector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConnector) AuditEvents(_ context.Context, since, until time.Time) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditCalls++
	var out []domain.AuditEvent
	for _, ev := range m.audit {
		if ev.At.After(since) && !ev.At.After(until) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockConnector) FetchPermissions(_ context.Context, externalID string) ([]domain.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

func (m *mockConnector) requestLog() []domain.PageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PageRequest(nil), m.requests...)
}

// mockFactory always returns the same connector.
type mockFactory struct {
	conn      driven.Connector
	createErr error
}

func (f *mockFactory) Create(_ context.Context, _ domain.SyncUnit) (driven.Connector, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.conn, nil
}

func (f *mockFactory) Register(_ string, _ driven.ConnectorBuilder) {}

func (f *mockFactory) SupportedTypes() []string { return nil }

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.RecordEvent
	err    error
}

func (p *mockPublisher) Publish(_ context.Context, events []domain.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *mockPublisher) published() []domain.RecordEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.RecordEvent(nil), p.events...)
}

func (p *mockPublisher) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Ensure mocks implement interfaces.
var (
	_ driven.Connector        = (*mockConnector)(nil)
	_ driven.PermissionSource = (*mockConnector)(nil)
	_ driven.ConnectorFactory = (*mockFactory)(nil)
	_ driven.EventPublisher   = (*mockPublisher)(nil)
)

var errBoom = errors.New("boom")

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return baseTime.Add(time.Duration(minutes) * time.Minute)
}

func item(id string, minutes int) domain.ExternalItem {
	return domain.ExternalItem{
		ExternalID: id,
		Revision:   "r" + strconv.Itoa(minutes),
		Type:       "message",
		Title:      id,
		CreatedAt:  at(minutes),
		UpdatedAt:  at(minutes),
	}
}

func userGrant(email string, t domain.PermissionType) domain.Grant {
	return domain.Grant{Principal: domain.PrincipalRef{Kind: domain.PrincipalUser, Key: email}, Type: t}
}
