package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/service"
)

// StatsInput defines the input schema for the stats tool.
type StatsInput struct {
	IncludeMetrics bool   `json:"include_metrics,omitempty" jsonschema:"Also include engine operation metrics"`
	OwnerKind      string `json:"owner_kind,omitempty" jsonschema:"Owner scope kind: 'persona' or 'conversation' (default from config)"`
	OwnerID        string `json:"owner_id,omitempty" jsonschema:"Owner identifier (default from config)"`
}

// StatsResult is the response from the stats tool.
type StatsResult struct {
	Stats   *service.OwnerStats `json:"stats"`
	Metrics *metrics.Snapshot   `json:"metrics,omitempty"`
}

// NewStatsHandler creates the stats tool handler.
func NewStatsHandler(deps *Dependencies, cfg *config.Config) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (
		*mcp.CallToolResult, any, error,
	) {
		owner, errResult := resolveOwner(cfg, input.OwnerKind, input.OwnerID)
		if errResult != nil {
			return errResult, nil, nil
		}

		stats, err := deps.Memories.Stats(ctx, owner)
		if err != nil {
			deps.Logger.Error("stats failed", "owner", owner.Key(), "error", err)
			return ErrorResult("Failed to collect stats", "Database may be unavailable"), nil, nil
		}

		result := StatsResult{Stats: stats}
		if input.IncludeMetrics && deps.Metrics != nil {
			snap := deps.Metrics.Snapshot()
			result.Metrics = &snap
		}
		jsonBytes, _ := json.MarshalIndent(result, "", "  ")

		return TextResult(string(jsonBytes)), nil, nil
	}
}
