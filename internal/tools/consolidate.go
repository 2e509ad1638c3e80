package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/models"
)

// ConsolidateInput defines the input schema for the consolidate tool.
type ConsolidateInput struct {
	OwnerKind string `json:"owner_kind,omitempty" jsonschema:"Owner scope kind: 'persona' or 'conversation' (default from config)"`
	OwnerID   string `json:"owner_id,omitempty" jsonschema:"Owner identifier (default from config)"`
}

// ConsolidateResult is the response from the consolidate tool.
type ConsolidateResult struct {
	Outcome   string `json:"outcome"`
	Backlog   int    `json:"backlog"`
	SummaryID string `json:"summary_id,omitempty"`
	TurnStart int    `json:"turn_start,omitempty"`
	TurnEnd   int    `json:"turn_end,omitempty"`
}

// NewConsolidateHandler creates the consolidate tool handler.
// Explicitly attempts one consolidation pass for the owner.
func NewConsolidateHandler(deps *Dependencies, cfg *config.Config) mcp.ToolHandlerFor[ConsolidateInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ConsolidateInput) (
		*mcp.CallToolResult, any, error,
	) {
		owner, errResult := resolveOwner(cfg, input.OwnerKind, input.OwnerID)
		if errResult != nil {
			return errResult, nil, nil
		}

		res, err := deps.Consolidation.MaybeConsolidate(ctx, owner)
		if err != nil {
			deps.Logger.Error("consolidate failed", "owner", owner.Key(), "error", err)
			return ErrorResult("Consolidation failed", "Database or LLM backend may be unavailable"), nil, nil
		}

		result := ConsolidateResult{
			Outcome: string(res.Outcome),
			Backlog: res.Backlog,
		}
		if res.Summary != nil {
			result.SummaryID = models.MustRecordIDString(res.Summary.ID)
			result.TurnStart = res.Summary.TurnStart
			result.TurnEnd = res.Summary.TurnEnd
		}
		jsonBytes, _ := json.MarshalIndent(result, "", "  ")

		deps.Logger.Info("consolidation attempted",
			"owner", owner.Key(),
			"outcome", result.Outcome,
			"backlog", result.Backlog)

		return TextResult(string(jsonBytes)), nil, nil
	}
}
