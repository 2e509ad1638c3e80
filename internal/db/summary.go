package db

import (
	"context"
	"fmt"
	"time"

	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateSummary inserts a consolidation summary. The unique range_key index
// rejects a second summary starting at the same turn for the same owner;
// that surfaces as ErrAlreadyExists and means another worker won the race.
func (c *Client) CreateSummary(ctx context.Context, s *models.SummaryRecord) (*models.SummaryRecord, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	sql := `
		CREATE summary SET
			owner_kind = $owner_kind,
			owner_id = $owner_id,
			summary_text = $summary_text,
			turn_start = $turn_start,
			turn_end = $turn_end,
			turn_count = $turn_count,
			key_topics = $key_topics,
			entities_discussed = $entities_discussed,
			decisions_made = $decisions_made,
			embedding = $embedding,
			embedding_model = $embedding_model,
			first_turn_at = $first_turn_at,
			last_turn_at = $last_turn_at,
			created = time::now()
		RETURN AFTER
	`

	vars := map[string]any{
		"owner_kind":         s.OwnerKind,
		"owner_id":           s.OwnerID,
		"summary_text":       s.SummaryText,
		"turn_start":         s.TurnStart,
		"turn_end":           s.TurnEnd,
		"turn_count":         s.TurnCount,
		"key_topics":         emptyIfNil(s.KeyTopics),
		"entities_discussed": emptyIfNil(s.EntitiesDiscussed),
		"decisions_made":     emptyIfNil(s.DecisionsMade),
		"embedding":          s.Embedding,
		"embedding_model":    s.EmbeddingModel,
		"first_turn_at":      s.FirstTurnAt,
		"last_turn_at":       s.LastTurnAt,
	}

	results, err := surrealdb.Query[[]models.SummaryRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("create summary: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create summary: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// LatestSummary returns the active summary covering the highest turn range
// for an owner, or nil when none exists.
func (c *Client) LatestSummary(ctx context.Context, owner models.Owner) (*models.SummaryRecord, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.SummaryRecord](ctx, c.db, `
		SELECT * FROM summary
		WHERE owner_kind = $owner_kind AND owner_id = $owner_id AND retired_at IS NONE
		ORDER BY turn_start DESC LIMIT 1
	`, map[string]any{"owner_kind": owner.Kind, "owner_id": owner.ID})
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListSummaries returns an owner's summaries ordered by range start.
func (c *Client) ListSummaries(ctx context.Context, owner models.Owner, includeRetired bool) ([]models.SummaryRecord, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	sql := `
		SELECT * FROM summary
		WHERE owner_kind = $owner_kind AND owner_id = $owner_id
	`
	if !includeRetired {
		sql += ` AND retired_at IS NONE`
	}
	sql += ` ORDER BY turn_start ASC`

	results, err := surrealdb.Query[[]models.SummaryRecord](ctx, c.db, sql,
		map[string]any{"owner_kind": owner.Kind, "owner_id": owner.ID})
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.SummaryRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// LastSummarizedSeq returns the highest turn covered by an active summary,
// or 0 when the owner has never been consolidated. Turns beyond this point
// form the consolidation backlog.
func (c *Client) LastSummarizedSeq(ctx context.Context, owner models.Owner) (int, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]int](ctx, c.db, `
		SELECT VALUE math::max(turn_end) FROM summary
		WHERE owner_kind = $owner_kind AND owner_id = $owner_id AND retired_at IS NONE
		GROUP ALL
	`, map[string]any{"owner_kind": owner.Kind, "owner_id": owner.ID})
	if err != nil {
		return 0, fmt.Errorf("last summarized seq: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0], nil
}

// RetireSummary marks a summary as superseded. Summaries are never edited
// in place; corrections happen by retiring and writing a replacement.
func (c *Client) RetireSummary(ctx context.Context, id string, now time.Time) error {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.SummaryRecord](ctx, c.db, `
		UPDATE type::record("summary", $id) SET retired_at = $now
		WHERE retired_at IS NONE
		RETURN AFTER
	`, map[string]any{"id": id, "now": now})
	if err != nil {
		return fmt.Errorf("retire summary: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("retire summary %s: %w", id, ErrNotFound)
	}
	return nil
}
