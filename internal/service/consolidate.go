package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/llm"
	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
)

// ConsolidationOutcome names what a MaybeConsolidate call did.
type ConsolidationOutcome string

const (
	// OutcomeSkipped means the backlog is below the consolidation threshold.
	OutcomeSkipped ConsolidationOutcome = "skipped"
	// OutcomeInProgress means another worker holds the lease or won the
	// write race; the backlog will be handled by that worker.
	OutcomeInProgress ConsolidationOutcome = "in_progress"
	// OutcomeSummarized means a new summary block was written.
	OutcomeSummarized ConsolidationOutcome = "summarized"
)

// ConsolidationResult reports a consolidation attempt.
type ConsolidationResult struct {
	Outcome ConsolidationOutcome  `json:"outcome"`
	Summary *models.SummaryRecord `json:"summary,omitempty"`
	Backlog int                   `json:"backlog"`
}

// ConsolidationService folds blocks of turns into summaries. Writes are
// serialized per owner through a durable expiring lease, so any number of
// engine instances can call MaybeConsolidate concurrently and the summary
// ranges stay non-overlapping.
type ConsolidationService struct {
	store    Store
	embedder Embedder
	model    Generator
	policy   config.Policy
	metrics  *metrics.Collector

	now func() time.Time
}

// NewConsolidationService creates a consolidation service.
func NewConsolidationService(store Store, embedder Embedder, model Generator, policy config.Policy, collector *metrics.Collector) *ConsolidationService {
	return &ConsolidationService{
		store:    store,
		embedder: embedder,
		model:    model,
		policy:   policy,
		metrics:  collector,
		now:      time.Now,
	}
}

// Backlog returns the number of turns not yet covered by a summary.
func (s *ConsolidationService) Backlog(ctx context.Context, owner models.Owner) (int, error) {
	lastEnd, err := s.store.LastSummarizedSeq(ctx, owner)
	if err != nil {
		return 0, err
	}
	maxSeq, err := s.store.MaxTurnSeq(ctx, owner)
	if err != nil {
		return 0, err
	}
	return maxSeq - lastEnd, nil
}

// MaybeConsolidate summarizes the next block of turns if the backlog has
// reached the threshold. Each successful call consumes exactly one block;
// a larger backlog drains across subsequent calls. The remainder below
// the threshold always stays unsummarized.
func (s *ConsolidationService) MaybeConsolidate(ctx context.Context, owner models.Owner) (*ConsolidationResult, error) {
	threshold := s.policy.Consolidation.TurnThreshold

	backlog, err := s.Backlog(ctx, owner)
	if err != nil {
		return nil, err
	}
	if backlog < threshold {
		return &ConsolidationResult{Outcome: OutcomeSkipped, Backlog: backlog}, nil
	}

	holder := uuid.New().String()[:8]
	acquired, err := s.store.AcquireLease(ctx, owner, holder, s.policy.Consolidation.LeaseTTL.Std())
	if err != nil {
		return nil, fmt.Errorf("acquire consolidation lease: %w", err)
	}
	if !acquired {
		return &ConsolidationResult{Outcome: OutcomeInProgress, Backlog: backlog}, nil
	}
	defer func() {
		// Release under a fresh context so a cancelled caller does not
		// leave the lease dangling until its TTL.
		if err := s.store.ReleaseLease(context.WithoutCancel(ctx), owner, holder); err != nil {
			slog.Warn("failed to release consolidation lease", "owner", owner.Key(), "holder", holder, "error", err)
		}
	}()

	// Re-read bounds under the lease: another worker may have advanced
	// the summarized range between the backlog check and the acquire.
	lastEnd, err := s.store.LastSummarizedSeq(ctx, owner)
	if err != nil {
		return nil, err
	}
	maxSeq, err := s.store.MaxTurnSeq(ctx, owner)
	if err != nil {
		return nil, err
	}
	backlog = maxSeq - lastEnd
	if backlog < threshold {
		return &ConsolidationResult{Outcome: OutcomeSkipped, Backlog: backlog}, nil
	}

	start, end := lastEnd+1, lastEnd+threshold
	turns, err := s.store.TurnRange(ctx, owner, start, end)
	if err != nil {
		return nil, err
	}
	if len(turns) != threshold {
		return nil, fmt.Errorf("consolidate %s: turn range %d..%d has %d turns, want %d",
			owner.Key(), start, end, len(turns), threshold)
	}

	summary, err := s.summarizeBlock(ctx, owner, turns)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreateSummary(ctx, summary)
	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			// Lost the write race despite the lease (e.g. a stolen lease
			// after TTL expiry). The unique range index kept the ranges
			// consistent; treat it as someone else's success.
			slog.Warn("summary range already written", "owner", owner.Key(), "start", start, "end", end)
			return &ConsolidationResult{Outcome: OutcomeInProgress, Backlog: backlog}, nil
		}
		return nil, err
	}

	slog.Info("consolidated turns",
		"owner", owner.Key(),
		"start", start,
		"end", end,
		"remaining_backlog", backlog-threshold)
	return &ConsolidationResult{
		Outcome: OutcomeSummarized,
		Summary: created,
		Backlog: backlog - threshold,
	}, nil
}

func (s *ConsolidationService) summarizeBlock(ctx context.Context, owner models.Owner, turns []models.Turn) (*models.SummaryRecord, error) {
	start := time.Now()
	raw, err := s.model.SummarizeTurns(ctx, turns)
	if s.metrics != nil {
		s.metrics.RecordTiming(metrics.OpLLMSummarize, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("summarize turns: %w", err)
	}

	draft, err := llm.ParseSummary(raw)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embedder.Embed(ctx, draft.Text)
	if err != nil {
		return nil, fmt.Errorf("embed summary: %w", err)
	}

	first, last := turns[0], turns[len(turns)-1]
	firstAt, lastAt := first.Created, last.Created
	return &models.SummaryRecord{
		OwnerKind:         owner.Kind,
		OwnerID:           owner.ID,
		SummaryText:       draft.Text,
		TurnStart:         first.Seq,
		TurnEnd:           last.Seq,
		TurnCount:         len(turns),
		KeyTopics:         draft.Topics,
		EntitiesDiscussed: draft.Entities,
		DecisionsMade:     draft.Decisions,
		Embedding:         embedding,
		EmbeddingModel:    s.embedder.Model(),
		FirstTurnAt:       &firstAt,
		LastTurnAt:        &lastAt,
	}, nil
}
