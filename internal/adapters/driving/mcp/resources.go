package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for mirror resources.
	uriScheme = "sercha-mirror://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "units",
		Name:        "units",
		Description: "Configured sync units with their lifecycle state",
		MIMEType:    "application/json",
	}, s.handleUnitsResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "connectors",
		Name:        "connectors",
		Description: "Available connector types and their configuration keys",
		MIMEType:    "application/json",
	}, s.handleConnectorsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "units/{unitId}",
		Name:        "unit-state",
		Description: "State and progress of a specific sync unit",
		MIMEType:    "application/json",
	}, s.handleUnitResource)
}

type unitInfo struct {
	ID        string   `json:"id"`
	Connector string   `json:"connector"`
	Name      string   `json:"name,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	Status    string   `json:"status"`
}

// handleUnitsResource lists the configured units.
func (s *Server) handleUnitsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if s.ports.Units == nil {
		return jsonResult(req.Params.URI, []unitInfo{})
	}

	units, err := s.ports.Units.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}

	infos := make([]unitInfo, len(units))
	for i, u := range units {
		infos[i] = unitInfo{ID: u.ID, Connector: u.Connector, Name: u.Name, Scopes: u.Scopes}
		if st, err := s.ports.Sync.Status(ctx, u.ID); err == nil {
			infos[i].Status = string(st.Status)
		}
	}
	return jsonResult(req.Params.URI, infos)
}

// handleConnectorsResource lists the connector types.
func (s *Server) handleConnectorsResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	type keyInfo struct {
		Key         string `json:"key"`
		Description string `json:"description"`
		Required    bool   `json:"required,omitempty"`
	}
	type connectorInfo struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description,omitempty"`
		ConfigKeys  []keyInfo `json:"config_keys,omitempty"`
	}

	infos := []connectorInfo{}
	if s.ports.Connectors != nil {
		for _, c := range s.ports.Connectors.List() {
			info := connectorInfo{ID: c.ID, Name: c.Name, Description: c.Description}
			for _, k := range c.ConfigKeys {
				info.ConfigKeys = append(info.ConfigKeys, keyInfo{Key: k.Key, Description: k.Description, Required: k.Required})
			}
			infos = append(infos, info)
		}
	}
	return jsonResult(req.Params.URI, infos)
}

// handleUnitResource returns the state of one unit.
func (s *Server) handleUnitResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	unitID := extractUnitID(req.Params.URI)
	if unitID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	state, err := s.ports.Sync.Status(ctx, unitID)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResult(req.Params.URI, toStateOutput(state))
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractUnitID extracts the unit ID from a URI like sercha-mirror://units/{unitId}.
func extractUnitID(uri string) string {
	const prefix = uriScheme + "units/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
