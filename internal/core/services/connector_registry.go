package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Ensure ConnectorRegistry implements the interface.
var _ driven.ConnectorFactory = (*ConnectorRegistry)(nil)

// ConnectorRegistry describes the available connector types and builds
// connectors for sync units.
type ConnectorRegistry struct {
	tokens driven.TokenProviderFactory

	mu         sync.RWMutex
	connectors map[string]domain.ConnectorType
	builders   map[string]driven.ConnectorBuilder
}

// NewConnectorRegistry creates a registry with the built-in connector descriptors.
// Builders are attached with Register.
func NewConnectorRegistry(tokens driven.TokenProviderFactory) *ConnectorRegistry {
	r := &ConnectorRegistry{
		tokens:     tokens,
		connectors: make(map[string]domain.ConnectorType),
		builders:   make(map[string]driven.ConnectorBuilder),
	}
	r.registerBuiltinConnectors()
	return r
}

func (r *ConnectorRegistry) registerBuiltinConnectors() {
	r.connectors["gmail"] = domain.ConnectorType{
		ID:          "gmail",
		Name:        "Gmail",
		Description: "Mirror mailbox threads, messages and attachments",
		PageMode:    domain.PageModeCursor,
		ConfigKeys: []domain.ConfigKey{
			{Key: "label_ids", Description: "Labels to sync, one scope each: INBOX,SENT,etc (default INBOX)"},
			{Key: "query", Description: "Additional Gmail search query"},
			{Key: "include_spam_trash", Description: "Include spam and trash (true/false)"},
		},
	}
	r.connectors["github"] = domain.ConnectorType{
		ID:          "github",
		Name:        "GitHub",
		Description: "Mirror issues, comments and assignees, with permission audit from issue events",
		PageMode:    domain.PageModeOffset,
		ConfigKeys: []domain.ConfigKey{
			{Key: "repos", Description: "Repositories to sync, one scope each: owner/repo,owner/other", Required: true},
		},
	}
	r.connectors["notion"] = domain.ConnectorType{
		ID:          "notion",
		Name:        "Notion",
		Description: "Mirror database pages and their file attachments",
		PageMode:    domain.PageModeCursor,
		ConfigKeys: []domain.ConfigKey{
			{Key: "database_ids", Description: "Databases to sync, one scope each", Required: true},
		},
	}
}

// Register adds a connector builder for the given type.
func (r *ConnectorRegistry) Register(connectorType string, builder driven.ConnectorBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[connectorType] = builder
	if _, ok := r.connectors[connectorType]; !ok {
		r.connectors[connectorType] = domain.ConnectorType{ID: connectorType, Name: connectorType}
	}
}

// Create builds the connector of a unit.
// Returns ErrUnsupportedType for unknown types and ErrConfiguration when
// required configuration keys are missing.
func (r *ConnectorRegistry) Create(_ context.Context, unit domain.SyncUnit) (driven.Connector, error) {
	r.mu.RLock()
	builder, ok := r.builders[unit.Connector]
	ct := r.connectors[unit.Connector]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, unit.Connector)
	}
	if missing := ct.MissingKeys(unit.Config); len(missing) > 0 {
		return nil, fmt.Errorf("%w: unit %s missing %s", domain.ErrConfiguration, unit.ID, strings.Join(missing, ", "))
	}

	var tp driven.TokenProvider
	if r.tokens != nil {
		tp = r.tokens.CreateTokenProvider(unit)
	}
	return builder(unit, tp)
}

// SupportedTypes returns the types with a registered builder, sorted.
func (r *ConnectorRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.builders))
	for t := range r.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// List returns all connector descriptors sorted by ID.
func (r *ConnectorRegistry) List() []domain.ConnectorType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.ConnectorType, 0, len(r.connectors))
	for _, c := range r.connectors {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Get returns a specific connector type by ID.
func (r *ConnectorRegistry) Get(id string) (*domain.ConnectorType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// ValidateConfig validates configuration for a connector type.
func (r *ConnectorRegistry) ValidateConfig(connectorID string, config map[string]string) error {
	c, err := r.Get(connectorID)
	if err != nil {
		return err
	}
	if missing := c.MissingKeys(config); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}
