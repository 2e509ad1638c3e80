package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
)

// AssembleInput defines the input schema for the assemble_context tool.
type AssembleInput struct {
	Query       string `json:"query" jsonschema:"required,What the upcoming exchange is about"`
	TokenBudget int    `json:"token_budget,omitempty" jsonschema:"Max tokens for the rendered block, 0 means unbounded"`
	OwnerKind   string `json:"owner_kind,omitempty" jsonschema:"Owner scope kind: 'persona' or 'conversation' (default from config)"`
	OwnerID     string `json:"owner_id,omitempty" jsonschema:"Owner identifier (default from config)"`
}

// NewAssembleHandler creates the assemble_context tool handler.
// Renders summary, relevant memories and recent turns into one bounded block.
func NewAssembleHandler(deps *Dependencies, cfg *config.Config) mcp.ToolHandlerFor[AssembleInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AssembleInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Query == "" {
			return ErrorResult("Query cannot be empty", "Describe what context is needed"), nil, nil
		}
		if input.TokenBudget < 0 {
			return ErrorResult("Token budget cannot be negative", "Use 0 for unbounded"), nil, nil
		}

		owner, errResult := resolveOwner(cfg, input.OwnerKind, input.OwnerID)
		if errResult != nil {
			return errResult, nil, nil
		}

		assembled, err := deps.Assembly.Assemble(ctx, owner, input.Query, input.TokenBudget)
		if err != nil {
			deps.Logger.Error("assemble failed", "owner", owner.Key(), "error", err)
			return ErrorResult("Failed to assemble context", "Database may be unavailable"), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(assembled, "", "  ")

		deps.Logger.Info("context assembled",
			"owner", owner.Key(),
			"tokens", assembled.TokenCount,
			"memories", len(assembled.MemoryIDs),
			"turns", assembled.TurnCount,
			"truncated", assembled.Truncated)

		return TextResult(string(jsonBytes)), nil, nil
	}
}
