package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies, cfg *config.Config) {
	// Ping tool - test/placeholder
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Test tool - responds with pong or echoes input",
	}, NewPingHandler(deps))

	// Record turn tool - append + extract + maybe consolidate
	mcp.AddTool(server, &mcp.Tool{
		Name:        "record_turn",
		Description: "Record a conversation turn, extract memories from it and trigger consolidation when due",
	}, NewRecordTurnHandler(deps, cfg))

	// Search tool - composite-scored similarity search
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search",
		Description: "Search stored memories by semantic similarity, time-decayed relevance and importance",
	}, NewSearchHandler(deps, cfg))

	// Assemble tool - budget-bounded context block
	mcp.AddTool(server, &mcp.Tool{
		Name:        "assemble_context",
		Description: "Assemble conversation summary, relevant memories and recent turns into one token-budgeted block",
	}, NewAssembleHandler(deps, cfg))

	// Consolidate tool - explicit consolidation pass
	mcp.AddTool(server, &mcp.Tool{
		Name:        "consolidate",
		Description: "Attempt one consolidation pass, folding a full block of unsummarized turns into a summary",
	}, NewConsolidateHandler(deps, cfg))

	// Maintain tool - retention maintenance
	mcp.AddTool(server, &mcp.Tool{
		Name:        "maintain",
		Description: "Retention maintenance: retire faded memories, prune long-retired ones or list near-duplicates",
	}, NewMaintainHandler(deps, cfg))

	// Stats tool - per-owner storage statistics
	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Per-owner storage statistics, optionally with engine operation metrics",
	}, NewStatsHandler(deps, cfg))

	// Reembed tool - background embedding migration jobs
	mcp.AddTool(server, &mcp.Tool{
		Name:        "reembed",
		Description: "Manage background jobs that re-encode memories stored under an older embedding model",
	}, NewReembedHandler(deps))
}
