package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
)

// SearchOptions configures a memory search.
type SearchOptions struct {
	// Kind restricts results to a single memory kind when set.
	Kind *models.MemoryKind
	// Limit caps the result count; 0 falls back to the policy top-k.
	Limit int
	// MinRelevance drops hits whose decayed relevance is below it.
	MinRelevance *float64
	// SkipAccessTracking leaves access counts untouched. Used when a
	// caller needs a read without reinforcement, such as maintenance.
	SkipAccessTracking bool
}

// SearchResult is a scored search hit.
type SearchResult struct {
	Memory     models.MemoryRecord `json:"memory"`
	Similarity float64             `json:"similarity"`
	Relevance  float64             `json:"relevance"`
	Score      float64             `json:"score"`
}

// Search runs a composite-scored similarity search over an owner's active
// memories. Results are ordered by score descending with deterministic
// tie-breaking, so identical state always yields identical rankings.
// Returned records count as accessed.
func (s *MemoryService) Search(ctx context.Context, owner models.Owner, query string, opts SearchOptions) ([]SearchResult, error) {
	defer s.record(metrics.OpSearch, time.Now())

	candidates, err := s.store.ListMemories(ctx, owner, db.MemoryListOptions{
		Kind:             opts.Kind,
		RequireEmbedding: true,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		// Owner without memories: nothing to embed against.
		return []SearchResult{}, nil
	}

	queryEmbedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	now := s.now().UTC()
	skipped := 0
	hits := make([]scored, 0, len(candidates))
	for i := range candidates {
		sc, err := s.scoreRecord(&candidates[i], queryEmbedding, now)
		if err != nil {
			// Stale encoding on one record must not fail the query.
			skipped++
			continue
		}
		if opts.MinRelevance != nil && sc.relevance < *opts.MinRelevance {
			continue
		}
		hits = append(hits, sc)
	}
	if skipped > 0 {
		slog.Debug("skipped incomparable candidates", "owner", owner.Key(), "skipped", skipped)
	}

	slices.SortFunc(hits, compareScored)

	limit := opts.Limit
	if limit <= 0 {
		limit = s.policy.Search.TopK
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		rec := h.rec
		if !opts.SkipAccessTracking {
			id := models.MustRecordIDString(rec.ID)
			if after, err := s.RecordAccess(ctx, id); err != nil {
				slog.Warn("failed to record memory access", "memory", id, "error", err)
			} else {
				rec = *after
			}
		}
		rec.RelevanceScore = h.relevance
		results = append(results, SearchResult{
			Memory:     rec,
			Similarity: h.similarity,
			Relevance:  h.relevance,
			Score:      h.score,
		})
	}
	return results, nil
}

// compareScored orders by score descending, then most recently accessed,
// then record ID, so equal scores never reorder between runs.
func compareScored(a, b scored) int {
	switch {
	case a.score > b.score:
		return -1
	case a.score < b.score:
		return 1
	}
	if c := b.rec.Accessed.Compare(a.rec.Accessed); c != 0 {
		return c
	}
	return strings.Compare(models.MustRecordIDString(a.rec.ID), models.MustRecordIDString(b.rec.ID))
}
