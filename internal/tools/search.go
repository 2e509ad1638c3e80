package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/models"
	"github.com/perso-labs/recall/internal/service"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query        string   `json:"query" jsonschema:"required,The search query text"`
	Kind         string   `json:"kind,omitempty" jsonschema:"Optional kind filter (fact, preference, decision, insight, entity_mention)"`
	Limit        int      `json:"limit,omitempty" jsonschema:"Max results 1-100, default from policy"`
	MinRelevance *float64 `json:"min_relevance,omitempty" jsonschema:"Drop hits whose decayed relevance is below this value (0-1)"`
	NoAccess     bool     `json:"no_access,omitempty" jsonschema:"Skip access tracking for this read"`
	OwnerKind    string   `json:"owner_kind,omitempty" jsonschema:"Owner scope kind: 'persona' or 'conversation' (default from config)"`
	OwnerID      string   `json:"owner_id,omitempty" jsonschema:"Owner identifier (default from config)"`
}

// MemoryView is a memory record in tool output, without the embedding.
type MemoryView struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Content     string    `json:"content"`
	Importance  float64   `json:"importance"`
	Similarity  float64   `json:"similarity"`
	Relevance   float64   `json:"relevance"`
	Score       float64   `json:"score"`
	AccessCount int       `json:"access_count"`
	Accessed    time.Time `json:"accessed,omitempty"`
}

// SearchToolResult is the response from the search tool.
type SearchToolResult struct {
	Memories []MemoryView `json:"memories"`
	Count    int          `json:"count"`
}

// memoryView trims a search hit down to the tool response shape.
func memoryView(hit service.SearchResult) MemoryView {
	return MemoryView{
		ID:          models.MustRecordIDString(hit.Memory.ID),
		Kind:        string(hit.Memory.Kind),
		Content:     hit.Memory.Content,
		Importance:  hit.Memory.Importance,
		Similarity:  hit.Similarity,
		Relevance:   hit.Relevance,
		Score:       hit.Score,
		AccessCount: hit.Memory.AccessCount,
		Accessed:    hit.Memory.Accessed,
	}
}

// NewSearchHandler creates the search tool handler.
// Composite-scored similarity search over the owner's active memories.
func NewSearchHandler(deps *Dependencies, cfg *config.Config) mcp.ToolHandlerFor[SearchInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, any, error,
	) {
		// Input validation
		if input.Query == "" {
			return ErrorResult("Query cannot be empty", "Provide a search query"), nil, nil
		}
		if input.Limit < 0 || input.Limit > 100 {
			return ErrorResult("Limit must be 1-100", "Reduce limit value"), nil, nil
		}
		if input.MinRelevance != nil && (*input.MinRelevance < 0 || *input.MinRelevance > 1) {
			return ErrorResult("min_relevance must be between 0 and 1", "Use a fraction such as 0.1"), nil, nil
		}

		owner, errResult := resolveOwner(cfg, input.OwnerKind, input.OwnerID)
		if errResult != nil {
			return errResult, nil, nil
		}

		opts := service.SearchOptions{
			Limit:              input.Limit,
			MinRelevance:       input.MinRelevance,
			SkipAccessTracking: input.NoAccess,
		}
		if input.Kind != "" {
			kind := models.MemoryKind(input.Kind)
			if !kind.Valid() {
				return ErrorResult("Invalid kind '"+input.Kind+"'", "Use fact, preference, decision, insight or entity_mention"), nil, nil
			}
			opts.Kind = &kind
		}

		hits, err := deps.Memories.Search(ctx, owner, input.Query, opts)
		if err != nil {
			deps.Logger.Error("search failed", "owner", owner.Key(), "error", err)
			return ErrorResult("Search failed", "Database may be unavailable"), nil, nil
		}

		result := SearchToolResult{
			Memories: make([]MemoryView, 0, len(hits)),
			Count:    len(hits),
		}
		for _, hit := range hits {
			result.Memories = append(result.Memories, memoryView(hit))
		}
		jsonBytes, _ := json.MarshalIndent(result, "", "  ")

		// Log completion (truncate query to 30 chars)
		queryLog := input.Query
		if len(queryLog) > 30 {
			queryLog = queryLog[:30] + "..."
		}
		deps.Logger.Info("search completed", "owner", owner.Key(), "query", queryLog, "results", len(hits))

		return TextResult(string(jsonBytes)), nil, nil
	}
}
