package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
)

const casRetryLimit = 32

// MemoryService owns the memory record lifecycle: dedup-or-create on
// ingestion, access tracking, search, and retention maintenance.
type MemoryService struct {
	store    Store
	embedder Embedder
	policy   config.Policy
	metrics  *metrics.Collector

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemoryService creates a memory service.
func NewMemoryService(store Store, embedder Embedder, policy config.Policy, collector *metrics.Collector) *MemoryService {
	return &MemoryService{
		store:    store,
		embedder: embedder,
		policy:   policy,
		metrics:  collector,
		now:      time.Now,
	}
}

// UpsertResult reports what an UpsertCandidate call did.
type UpsertResult struct {
	Memory     *models.MemoryRecord
	Reinforced bool
}

// UpsertCandidate stores an extracted candidate, deduplicating against the
// owner's existing memories of the same kind. A candidate whose embedding
// is close enough to an existing record reinforces that record instead of
// creating a near-duplicate; the existing content is kept verbatim.
func (s *MemoryService) UpsertCandidate(ctx context.Context, owner models.Owner, cand models.CandidateMemory, sourceTurnID string) (*UpsertResult, error) {
	defer s.record(metrics.OpUpsert, time.Now())

	embedding, err := s.embed(ctx, cand.Content)
	if err != nil {
		return nil, fmt.Errorf("embed candidate: %w", err)
	}

	kind := cand.Kind
	existing, err := s.store.ListMemories(ctx, owner, db.MemoryListOptions{
		Kind:             &kind,
		RequireEmbedding: true,
	})
	if err != nil {
		return nil, err
	}

	var best *models.MemoryRecord
	bestSim := -1.0
	for i := range existing {
		rec := &existing[i]
		if rec.EmbeddingModel != s.embedder.Model() {
			// Encoded under a different model version; incomparable.
			continue
		}
		sim, err := CosineSimilarity(embedding, rec.Embedding)
		if err != nil {
			slog.Debug("skipping incomparable memory", "memory", models.MustRecordIDString(rec.ID), "error", err)
			continue
		}
		if sim > bestSim {
			bestSim = sim
			best = rec
		}
	}

	if best != nil && bestSim >= s.policy.Reinforcement.SimilarityThreshold {
		reinforced, err := s.reinforce(ctx, best, cand, sourceTurnID)
		if err != nil {
			return nil, err
		}
		slog.Debug("reinforced memory",
			"memory", models.MustRecordIDString(reinforced.ID),
			"similarity", bestSim,
			"importance", reinforced.Importance)
		return &UpsertResult{Memory: reinforced, Reinforced: true}, nil
	}

	now := s.now().UTC()
	created, err := s.store.CreateMemory(ctx, &models.MemoryRecord{
		OwnerKind:       owner.Kind,
		OwnerID:         owner.ID,
		Kind:            cand.Kind,
		Content:         cand.Content,
		Importance:      clamp01(cand.Importance),
		RelatedEntities: cand.RelatedEntities,
		Embedding:       embedding,
		EmbeddingModel:  s.embedder.Model(),
		SourceTurnIDs:   []string{sourceTurnID},
		FirstSeen:       now,
		Accessed:        now,
	})
	if err != nil {
		return nil, err
	}
	return &UpsertResult{Memory: created}, nil
}

// reinforce bumps an existing record instead of creating a duplicate. The
// version-guarded update retries on conflict so concurrent reinforcement
// of the same record never loses an increment.
func (s *MemoryService) reinforce(ctx context.Context, rec *models.MemoryRecord, cand models.CandidateMemory, sourceTurnID string) (*models.MemoryRecord, error) {
	id := models.MustRecordIDString(rec.ID)
	current := rec

	for attempt := 0; attempt < casRetryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		importance := clamp01(max(current.Importance, cand.Importance) + s.policy.Reinforcement.ImportanceBump)
		after, err := s.store.UpdateMemoryCAS(ctx, id, current.Version, models.MemoryUpdate{
			Importance:       importance,
			Accessed:         s.now().UTC(),
			AccessCountDelta: 1,
			AppendSourceTurn: sourceTurnID,
		})
		if err != nil {
			return nil, err
		}
		if after != nil {
			return after, nil
		}

		current, err = s.store.GetMemory(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("reinforce memory %s: version conflict persisted", id)
}

// RecordAccess registers a retrieval of a memory record, bumping its
// access count and refreshing its accessed timestamp. Under concurrent
// access every call lands exactly once.
func (s *MemoryService) RecordAccess(ctx context.Context, id string) (*models.MemoryRecord, error) {
	current, err := s.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < casRetryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		after, err := s.store.UpdateMemoryCAS(ctx, id, current.Version, models.MemoryUpdate{
			Importance:       clamp01(current.Importance + s.policy.Reinforcement.AccessBump),
			Accessed:         s.now().UTC(),
			AccessCountDelta: 1,
		})
		if err != nil {
			return nil, err
		}
		if after != nil {
			return after, nil
		}

		current, err = s.store.GetMemory(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("record access %s: version conflict persisted", id)
}

// scored pairs a record with its retrieval scores.
type scored struct {
	rec        models.MemoryRecord
	similarity float64
	relevance  float64
	score      float64
}

// scoreRecord computes the derived scores for a record at a point in time.
// Returns ErrEncodingMismatch when the record cannot be compared to the
// query embedding.
func (s *MemoryService) scoreRecord(rec *models.MemoryRecord, queryEmbedding []float32, now time.Time) (scored, error) {
	if rec.EmbeddingModel != s.embedder.Model() {
		return scored{}, ErrEncodingMismatch
	}
	sim, err := CosineSimilarity(queryEmbedding, rec.Embedding)
	if err != nil {
		return scored{}, err
	}

	lambda := s.policy.Decay.LambdaFor(rec.Kind)
	rel := Relevance(rec.Importance, lambda, now.Sub(rec.Accessed))

	w := s.policy.Search
	return scored{
		rec:        *rec,
		similarity: sim,
		relevance:  rel,
		score:      w.SimilarityWeight*sim + w.RelevanceWeight*rel + w.ImportanceWeight*rec.Importance,
	}, nil
}

func (s *MemoryService) embed(ctx context.Context, text string) ([]float32, error) {
	defer s.record(metrics.OpEmbedding, time.Now())
	return s.embedder.Embed(ctx, text)
}

func (s *MemoryService) record(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordTiming(op, time.Since(start))
	}
}
