package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/models"
	"github.com/perso-labs/recall/internal/service"
)

// MaintainInput defines the input schema for the maintain tool.
type MaintainInput struct {
	Action              string  `json:"action" jsonschema:"required,enum=retire|prune|similar,Maintenance action: 'retire' soft-retires faded memories, 'prune' deletes long-retired ones, 'similar' lists near-duplicate pairs"`
	DryRun              bool    `json:"dry_run,omitempty" jsonschema:"Preview changes without applying (default: false)"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty" jsonschema:"Minimum similarity 0.0-1.0 for 'similar' (default: 0.85)"`
	OwnerKind           string  `json:"owner_kind,omitempty" jsonschema:"Owner scope kind: 'persona' or 'conversation' (default from config)"`
	OwnerID             string  `json:"owner_id,omitempty" jsonschema:"Owner identifier (default from config)"`
}

// SimilarPairView is one near-duplicate pair in tool output.
type SimilarPairView struct {
	AID        string  `json:"a_id"`
	AContent   string  `json:"a_content"`
	BID        string  `json:"b_id"`
	BContent   string  `json:"b_content"`
	Similarity float64 `json:"similarity"`
}

// MaintainResult wraps the action-specific result.
type MaintainResult struct {
	Action  string                     `json:"action"`
	Retire  *service.MaintenanceResult `json:"retire,omitempty"`
	Prune   *service.MaintenanceResult `json:"prune,omitempty"`
	Similar []SimilarPairView          `json:"similar,omitempty"`
}

// NewMaintainHandler creates the maintain tool handler.
// Supports retention maintenance: retire, prune and similar.
func NewMaintainHandler(deps *Dependencies, cfg *config.Config) mcp.ToolHandlerFor[MaintainInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input MaintainInput) (
		*mcp.CallToolResult, any, error,
	) {
		owner, errResult := resolveOwner(cfg, input.OwnerKind, input.OwnerID)
		if errResult != nil {
			return errResult, nil, nil
		}

		result := MaintainResult{Action: input.Action}

		switch input.Action {
		case "retire":
			res, err := deps.Memories.RetireFaded(ctx, owner, input.DryRun)
			if err != nil {
				deps.Logger.Error("maintain retire failed", "owner", owner.Key(), "error", err)
				return ErrorResult("Failed to retire faded memories", "Database may be unavailable"), nil, nil
			}
			result.Retire = res

		case "prune":
			res, err := deps.Memories.PruneRetired(ctx, owner, input.DryRun)
			if err != nil {
				deps.Logger.Error("maintain prune failed", "owner", owner.Key(), "error", err)
				return ErrorResult("Failed to prune retired memories", "Database may be unavailable"), nil, nil
			}
			result.Prune = res

		case "similar":
			threshold := input.SimilarityThreshold
			if threshold <= 0 {
				threshold = 0.85
			}
			if threshold > 1 {
				return ErrorResult("Similarity threshold must be 0.0-1.0", "Reduce threshold value"), nil, nil
			}
			pairs, err := deps.Memories.SimilarPairs(ctx, owner, threshold)
			if err != nil {
				deps.Logger.Error("maintain similar failed", "owner", owner.Key(), "error", err)
				return ErrorResult("Failed to find similar memories", "Database may be unavailable"), nil, nil
			}
			result.Similar = make([]SimilarPairView, 0, len(pairs))
			for _, p := range pairs {
				result.Similar = append(result.Similar, SimilarPairView{
					AID:        models.MustRecordIDString(p.A.ID),
					AContent:   p.A.Content,
					BID:        models.MustRecordIDString(p.B.ID),
					BContent:   p.B.Content,
					Similarity: p.Similarity,
				})
			}

		default:
			return ErrorResult("Invalid action", "Use 'retire', 'prune' or 'similar'"), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(result, "", "  ")

		deps.Logger.Info("maintenance completed", "owner", owner.Key(), "action", input.Action, "dry_run", input.DryRun)

		return TextResult(string(jsonBytes)), nil, nil
	}
}
