package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// UnitInput selects a sync unit.
type UnitInput struct {
	UnitID string `json:"unit_id" jsonschema:"the id of the sync unit"`
}

// StateOutput is the state of a unit.
type StateOutput struct {
	UnitID    string         `json:"unit_id"`
	Status    string         `json:"status"`
	LastError string         `json:"last_error,omitempty"`
	StartedAt string         `json:"started_at,omitempty"`
	UpdatedAt string         `json:"updated_at,omitempty"`
	Progress  ProgressOutput `json:"progress"`
}

// ProgressOutput is the work done by a run.
type ProgressOutput struct {
	ScopesDone         int `json:"scopes_done"`
	ScopesFailed       int `json:"scopes_failed"`
	Pages              int `json:"pages"`
	RecordsWritten     int `json:"records_written"`
	RelationsWritten   int `json:"relations_written"`
	PermissionsWritten int `json:"permissions_written"`
	Unchanged          int `json:"unchanged"`
	Malformed          int `json:"malformed"`
}

// ReindexInput is the input schema for the reindex tool.
type ReindexInput struct {
	UnitID      string   `json:"unit_id" jsonschema:"the id of the sync unit"`
	Scope       string   `json:"scope" jsonschema:"the scope of the items as connector/entity/key"`
	ExternalIDs []string `json:"external_ids" jsonschema:"source identifiers of the items to re-fetch"`
}

// ReindexOutput summarizes a reindex.
type ReindexOutput struct {
	RecordsWritten     int `json:"records_written"`
	PermissionsWritten int `json:"permissions_written"`
	Unchanged          int `json:"unchanged"`
	Events             int `json:"events"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "start",
		Description: "Start a sync run of a unit from its committed checkpoints",
	}, s.handleStart)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "pause",
		Description: "Pause a running unit after the batch in flight",
	}, s.handlePause)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "resume",
		Description: "Resume a paused unit",
	}, s.handleResume)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "status",
		Description: "Get the lifecycle state and progress of a unit",
	}, s.handleStatus)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reindex",
		Description: "Re-fetch specific items of a unit and republish those whose revision changed",
	}, s.handleReindex)
}

func (s *Server) handleStart(ctx context.Context, _ *mcp.CallToolRequest, input UnitInput) (*mcp.CallToolResult, StateOutput, error) {
	return s.transition(ctx, input.UnitID, s.ports.Sync.Start)
}

func (s *Server) handlePause(ctx context.Context, _ *mcp.CallToolRequest, input UnitInput) (*mcp.CallToolResult, StateOutput, error) {
	return s.transition(ctx, input.UnitID, s.ports.Sync.Pause)
}

func (s *Server) handleResume(ctx context.Context, _ *mcp.CallToolRequest, input UnitInput) (*mcp.CallToolResult, StateOutput, error) {
	return s.transition(ctx, input.UnitID, s.ports.Sync.Resume)
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, input UnitInput) (*mcp.CallToolResult, StateOutput, error) {
	state, err := s.ports.Sync.Status(ctx, input.UnitID)
	if err != nil {
		return nil, StateOutput{}, err
	}
	return nil, toStateOutput(state), nil
}

// transition applies a lifecycle operation and reports the resulting state.
func (s *Server) transition(
	ctx context.Context,
	unitID string,
	op func(context.Context, string) error,
) (*mcp.CallToolResult, StateOutput, error) {
	if unitID == "" {
		return nil, StateOutput{}, fmt.Errorf("%w: unit_id is required", domain.ErrInvalidInput)
	}
	if err := op(ctx, unitID); err != nil {
		return nil, StateOutput{}, err
	}
	state, err := s.ports.Sync.Status(ctx, unitID)
	if err != nil {
		return nil, StateOutput{}, err
	}
	return nil, toStateOutput(state), nil
}

func (s *Server) handleReindex(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (*mcp.CallToolResult, ReindexOutput, error) {
	scope, err := domain.ParseSyncScope(input.Scope)
	if err != nil {
		return nil, ReindexOutput{}, err
	}
	if len(input.ExternalIDs) == 0 {
		return nil, ReindexOutput{}, fmt.Errorf("%w: external_ids is empty", domain.ErrInvalidInput)
	}

	res, err := s.ports.Sync.Reindex(ctx, input.UnitID, scope, input.ExternalIDs)
	if err != nil {
		return nil, ReindexOutput{}, err
	}
	return nil, ReindexOutput{
		RecordsWritten:     res.RecordsWritten,
		PermissionsWritten: res.PermissionsWritten,
		Unchanged:          res.Unchanged,
		Events:             len(res.Events),
	}, nil
}

func toStateOutput(st *domain.UnitState) StateOutput {
	out := StateOutput{
		UnitID:    st.UnitID,
		Status:    string(st.Status),
		LastError: st.LastError,
		StartedAt: formatTime(st.StartedAt),
		UpdatedAt: formatTime(st.UpdatedAt),
		Progress: ProgressOutput{
			ScopesDone:         st.Progress.ScopesDone,
			ScopesFailed:       st.Progress.ScopesFailed,
			Pages:              st.Progress.Pages,
			RecordsWritten:     st.Progress.RecordsWritten,
			RelationsWritten:   st.Progress.RelationsWritten,
			PermissionsWritten: st.Progress.PermissionsWritten,
			Unchanged:          st.Progress.Unchanged,
			Malformed:          st.Progress.Malformed,
		},
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
