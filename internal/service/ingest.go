package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/perso-labs/recall/internal/llm"
	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
)

var (
	_ Embedder  = (*llm.Embedder)(nil)
	_ Generator = (*llm.Model)(nil)
)

// IngestService is the write path for conversation turns: store the turn,
// extract and upsert memory candidates, then trigger consolidation when
// the backlog calls for it.
type IngestService struct {
	store         Store
	model         Generator
	memories      *MemoryService
	consolidation *ConsolidationService
	metrics       *metrics.Collector
}

// NewIngestService creates an ingest service.
func NewIngestService(store Store, model Generator, memories *MemoryService, consolidation *ConsolidationService, collector *metrics.Collector) *IngestService {
	return &IngestService{
		store:         store,
		model:         model,
		memories:      memories,
		consolidation: consolidation,
		metrics:       collector,
	}
}

// RecordTurnResult reports what ingesting a turn did.
type RecordTurnResult struct {
	Turn          *models.Turn         `json:"turn"`
	Created       int                  `json:"memories_created"`
	Reinforced    int                  `json:"memories_reinforced"`
	Consolidation *ConsolidationResult `json:"consolidation,omitempty"`
}

// RecordTurn appends a turn and runs the derived writes. The turn itself
// is the only write that can fail the call: extraction and consolidation
// failures are logged and skipped, and the derived writes run under a
// detached context so a caller hanging up mid-call cannot leave a
// half-written memory behind.
func (s *IngestService) RecordTurn(ctx context.Context, owner models.Owner, role, content string) (*RecordTurnResult, error) {
	turn, err := s.store.AppendTurn(ctx, owner, role, content)
	if err != nil {
		return nil, err
	}
	result := &RecordTurnResult{Turn: turn}

	bg := context.WithoutCancel(ctx)
	turnID := models.MustRecordIDString(turn.ID)

	start := time.Now()
	raw, err := s.model.ExtractMemories(bg, role, content)
	if s.metrics != nil {
		s.metrics.RecordTiming(metrics.OpLLMExtract, time.Since(start))
	}
	if err != nil {
		// The turn is stored either way; extraction can be repeated by a
		// later maintenance pass.
		slog.Warn("memory extraction failed", "owner", owner.Key(), "turn", turnID, "error", err)
	} else {
		for _, cand := range llm.ParseCandidates(raw) {
			upsert, err := s.memories.UpsertCandidate(bg, owner, cand, turnID)
			if err != nil {
				slog.Warn("memory upsert failed", "owner", owner.Key(), "turn", turnID, "error", err)
				if errors.Is(err, llm.ErrFatalAPI) {
					break
				}
				continue
			}
			if upsert.Reinforced {
				result.Reinforced++
			} else {
				result.Created++
			}
		}
	}

	consolidation, err := s.consolidation.MaybeConsolidate(bg, owner)
	if err != nil {
		slog.Warn("consolidation failed", "owner", owner.Key(), "error", err)
	} else {
		result.Consolidation = consolidation
	}

	return result, nil
}
