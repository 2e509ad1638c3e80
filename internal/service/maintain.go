package service

import (
	"context"
	"log/slog"

	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/models"
)

// MaintenanceResult reports what a maintenance sweep did.
type MaintenanceResult struct {
	Examined int      `json:"examined"`
	Retired  int      `json:"retired"`
	Pruned   int      `json:"pruned"`
	DryRun   bool     `json:"dry_run"`
	Affected []string `json:"affected,omitempty"`
}

// RetireFaded soft-retires active records whose decayed relevance has
// stayed below the retention floor for at least a full retention window.
// A record that only recently dipped under the floor survives the sweep:
// decay is monotone between accesses, so it suffices to check the
// relevance the record already had one window ago. Retired records stay
// stored and auditable; they just stop participating in retrieval. With
// dryRun set, nothing is written and Affected lists what would have been
// retired.
func (s *MemoryService) RetireFaded(ctx context.Context, owner models.Owner, dryRun bool) (*MaintenanceResult, error) {
	records, err := s.store.ListMemories(ctx, owner, db.MemoryListOptions{})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	window := s.policy.Retention.Window.Std()
	result := &MaintenanceResult{Examined: len(records), DryRun: dryRun}

	var faded []string
	for i := range records {
		rec := &records[i]
		agedBy := now.Add(-window).Sub(rec.Accessed)
		if agedBy <= 0 {
			// Accessed within the window, cannot have been faded long enough.
			continue
		}
		lambda := s.policy.Decay.LambdaFor(rec.Kind)
		rel := Relevance(rec.Importance, lambda, agedBy)
		if rel < s.policy.Retention.RelevanceFloor {
			faded = append(faded, models.MustRecordIDString(rec.ID))
		}
	}

	result.Affected = faded
	if dryRun || len(faded) == 0 {
		result.Retired = len(faded)
		return result, nil
	}

	n, err := s.store.RetireMemories(ctx, now, faded...)
	if err != nil {
		return result, err
	}
	result.Retired = n
	slog.Info("retired faded memories", "owner", owner.Key(), "retired", n)
	return result, nil
}

// PruneRetired hard-deletes records that have been retired longer than the
// retention window. This is the only path that destroys memory content.
func (s *MemoryService) PruneRetired(ctx context.Context, owner models.Owner, dryRun bool) (*MaintenanceResult, error) {
	records, err := s.store.ListMemories(ctx, owner, db.MemoryListOptions{IncludeRetired: true})
	if err != nil {
		return nil, err
	}

	cutoff := s.now().UTC().Add(-s.policy.Retention.Window.Std())
	result := &MaintenanceResult{Examined: len(records), DryRun: dryRun}

	var expired []string
	for i := range records {
		rec := &records[i]
		if rec.RetiredAt != nil && rec.RetiredAt.Before(cutoff) {
			expired = append(expired, models.MustRecordIDString(rec.ID))
		}
	}

	result.Affected = expired
	if dryRun || len(expired) == 0 {
		result.Pruned = len(expired)
		return result, nil
	}

	n, err := s.store.DeleteMemories(ctx, expired...)
	if err != nil {
		return result, err
	}
	result.Pruned = n
	slog.Info("pruned retired memories", "owner", owner.Key(), "pruned", n)
	return result, nil
}

// SimilarPair is a pair of distinct records whose embeddings sit close
// together without having crossed the reinforcement threshold.
type SimilarPair struct {
	A          models.MemoryRecord `json:"a"`
	B          models.MemoryRecord `json:"b"`
	Similarity float64             `json:"similarity"`
}

// SimilarPairs surfaces near-duplicate records for manual review. Pairs at
// or above the reinforcement threshold cannot normally exist; this finds
// the ones just below it, where the dedup heuristic declined to merge.
func (s *MemoryService) SimilarPairs(ctx context.Context, owner models.Owner, minSimilarity float64) ([]SimilarPair, error) {
	records, err := s.store.ListMemories(ctx, owner, db.MemoryListOptions{RequireEmbedding: true})
	if err != nil {
		return nil, err
	}

	var pairs []SimilarPair
	for i := range records {
		if records[i].EmbeddingModel != s.embedder.Model() {
			continue
		}
		for j := i + 1; j < len(records); j++ {
			if records[j].Kind != records[i].Kind || records[j].EmbeddingModel != s.embedder.Model() {
				continue
			}
			sim, err := CosineSimilarity(records[i].Embedding, records[j].Embedding)
			if err != nil {
				continue
			}
			if sim >= minSimilarity {
				pairs = append(pairs, SimilarPair{A: records[i], B: records[j], Similarity: sim})
			}
		}
	}
	return pairs, nil
}

// OwnerStats describes an owner's stored state.
type OwnerStats struct {
	Owner            models.Owner   `json:"owner"`
	MemoriesByKind   []db.KindCount `json:"memories_by_kind"`
	Summaries        int            `json:"summaries"`
	Turns            int            `json:"turns"`
	LastSummarized   int            `json:"last_summarized_seq"`
	UnsummarizedTurn int            `json:"unsummarized_turns"`
	StaleEmbeddings  int            `json:"stale_embeddings"`
}

// Stats collects per-owner storage statistics.
func (s *MemoryService) Stats(ctx context.Context, owner models.Owner) (*OwnerStats, error) {
	counts, err := s.store.CountMemories(ctx, owner)
	if err != nil {
		return nil, err
	}
	summaries, err := s.store.ListSummaries(ctx, owner, false)
	if err != nil {
		return nil, err
	}
	maxSeq, err := s.store.MaxTurnSeq(ctx, owner)
	if err != nil {
		return nil, err
	}
	lastSummarized, err := s.store.LastSummarizedSeq(ctx, owner)
	if err != nil {
		return nil, err
	}
	stale, err := s.store.CountStaleEmbeddingsForOwner(ctx, owner, s.embedder.Model())
	if err != nil {
		return nil, err
	}

	return &OwnerStats{
		Owner:            owner,
		MemoriesByKind:   counts,
		Summaries:        len(summaries),
		Turns:            maxSeq,
		LastSummarized:   lastSummarized,
		UnsummarizedTurn: maxSeq - lastSummarized,
		StaleEmbeddings:  stale,
	}, nil
}
