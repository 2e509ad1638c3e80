package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/models"
)

// RecordTurnInput defines the input schema for the record_turn tool.
type RecordTurnInput struct {
	Role      string `json:"role" jsonschema:"required,Speaker role: 'user' or 'assistant'"`
	Content   string `json:"content" jsonschema:"required,Verbatim turn text"`
	OwnerKind string `json:"owner_kind,omitempty" jsonschema:"Owner scope kind: 'persona' or 'conversation' (default from config)"`
	OwnerID   string `json:"owner_id,omitempty" jsonschema:"Owner identifier (default from config)"`
}

// RecordTurnResult is the response from the record_turn tool.
type RecordTurnResult struct {
	TurnID        string `json:"turn_id"`
	Seq           int    `json:"seq"`
	Created       int    `json:"memories_created"`
	Reinforced    int    `json:"memories_reinforced"`
	Consolidation string `json:"consolidation,omitempty"`
	Backlog       int    `json:"backlog"`
}

// NewRecordTurnHandler creates the record_turn tool handler.
// Appends the turn, extracts memories from it and may trigger consolidation.
func NewRecordTurnHandler(deps *Dependencies, cfg *config.Config) mcp.ToolHandlerFor[RecordTurnInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RecordTurnInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Content == "" {
			return ErrorResult("Content is required", "Provide the turn text"), nil, nil
		}
		if input.Role != "user" && input.Role != "assistant" {
			return ErrorResult("Invalid role '"+input.Role+"'", "Use 'user' or 'assistant'"), nil, nil
		}

		owner, errResult := resolveOwner(cfg, input.OwnerKind, input.OwnerID)
		if errResult != nil {
			return errResult, nil, nil
		}

		res, err := deps.Ingest.RecordTurn(ctx, owner, input.Role, input.Content)
		if err != nil {
			deps.Logger.Error("record_turn failed", "owner", owner.Key(), "error", err)
			return ErrorResult("Failed to record turn", "Database may be unavailable"), nil, nil
		}

		result := RecordTurnResult{
			TurnID:     models.MustRecordIDString(res.Turn.ID),
			Seq:        res.Turn.Seq,
			Created:    res.Created,
			Reinforced: res.Reinforced,
		}
		if res.Consolidation != nil {
			result.Consolidation = string(res.Consolidation.Outcome)
			result.Backlog = res.Consolidation.Backlog
		}
		jsonBytes, _ := json.MarshalIndent(result, "", "  ")

		deps.Logger.Info("turn recorded",
			"owner", owner.Key(),
			"seq", res.Turn.Seq,
			"created", res.Created,
			"reinforced", res.Reinforced)

		return TextResult(string(jsonBytes)), nil, nil
	}
}
