// Package tools provides MCP tool handlers and registration.
package tools

import (
	"log/slog"

	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/service"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Memories      *service.MemoryService
	Ingest        *service.IngestService
	Consolidation *service.ConsolidationService
	Assembly      *service.AssemblyService
	Reembed       *service.ReembedManager
	Metrics       *metrics.Collector
	Logger        *slog.Logger
}
