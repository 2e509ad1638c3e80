package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/models"
)

// validOwnerKinds are the owner scopes the engine accepts.
var validOwnerKinds = map[string]bool{
	"persona":      true,
	"conversation": true,
}

// resolveOwner builds the owner scope for a tool call.
// Priority: explicit input > config defaults. Returns a non-nil error
// result when no usable owner can be determined.
func resolveOwner(cfg *config.Config, kind, id string) (models.Owner, *mcp.CallToolResult) {
	if kind == "" {
		kind = cfg.DefaultOwnerKind
	}
	if id == "" {
		id = cfg.DefaultOwnerID
	}
	if id == "" {
		return models.Owner{}, ErrorResult("Owner ID is required", "Provide owner_id or set RECALL_OWNER_ID")
	}
	if !validOwnerKinds[kind] {
		return models.Owner{}, ErrorResult("Invalid owner kind '"+kind+"'", "Use 'persona' or 'conversation'")
	}
	return models.Owner{Kind: kind, ID: id}, nil
}
