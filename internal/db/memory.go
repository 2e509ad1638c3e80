package db

import (
	"context"
	"fmt"
	"time"

	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// MemoryListOptions narrows ListMemories results.
type MemoryListOptions struct {
	Kind           *models.MemoryKind
	IncludeRetired bool
	// RequireEmbedding excludes records whose embedding has not been
	// attached yet; such records must never be searchable.
	RequireEmbedding bool
	Limit            int
}

// CreateMemory inserts a new memory record and returns it with its ID.
func (c *Client) CreateMemory(ctx context.Context, rec *models.MemoryRecord) (*models.MemoryRecord, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	sql := `
		CREATE memory SET
			owner_kind = $owner_kind,
			owner_id = $owner_id,
			kind = $kind,
			content = $content,
			importance = $importance,
			related_entities = $related_entities,
			embedding = $embedding,
			embedding_model = $embedding_model,
			source_turn_ids = $source_turn_ids,
			first_seen = $now,
			accessed = $now,
			access_count = $access_count,
			version = 0
		RETURN AFTER
	`

	vars := map[string]any{
		"owner_kind":       rec.OwnerKind,
		"owner_id":         rec.OwnerID,
		"kind":             string(rec.Kind),
		"content":          rec.Content,
		"importance":       rec.Importance,
		"related_entities": emptyIfNil(rec.RelatedEntities),
		"embedding":        rec.Embedding,
		"embedding_model":  rec.EmbeddingModel,
		"source_turn_ids":  emptyIfNil(rec.SourceTurnIDs),
		"access_count":     rec.AccessCount,
		"now":              rec.FirstSeen,
	}

	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create memory: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetMemory retrieves a memory record by ID. Returns ErrNotFound if absent.
func (c *Client) GetMemory(ctx context.Context, id string) (*models.MemoryRecord, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, `
		SELECT * FROM type::record("memory", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get memory %s: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListMemories returns an owner's memory records ordered by first_seen then
// record ID, so repeated reads of unchanged state see identical ordering.
func (c *Client) ListMemories(ctx context.Context, owner models.Owner, opts MemoryListOptions) ([]models.MemoryRecord, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	sql := `SELECT * FROM memory WHERE owner_kind = $owner_kind AND owner_id = $owner_id`
	vars := map[string]any{
		"owner_kind": owner.Kind,
		"owner_id":   owner.ID,
	}
	if opts.Kind != nil {
		sql += ` AND kind = $kind`
		vars["kind"] = string(*opts.Kind)
	}
	if !opts.IncludeRetired {
		sql += ` AND retired_at IS NONE`
	}
	if opts.RequireEmbedding {
		sql += ` AND array::len(embedding) > 0`
	}
	sql += ` ORDER BY first_seen ASC, id ASC`
	if opts.Limit > 0 {
		sql += ` LIMIT $limit`
		vars["limit"] = opts.Limit
	}

	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.MemoryRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// UpdateMemoryCAS applies a compare-and-swap update guarded by the record
// version. Returns (nil, nil) when the version no longer matches; callers
// re-read and retry so concurrent reinforcement never loses an increment.
func (c *Client) UpdateMemoryCAS(ctx context.Context, id string, expectedVersion int, upd models.MemoryUpdate) (*models.MemoryRecord, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	turns := []string{}
	if upd.AppendSourceTurn != "" {
		turns = append(turns, upd.AppendSourceTurn)
	}

	sql := `
		UPDATE type::record("memory", $id) SET
			importance = $importance,
			accessed = $accessed,
			access_count += $delta,
			source_turn_ids = array::union(source_turn_ids, $turns),
			version += 1
		WHERE version = $version
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, sql, map[string]any{
		"id":         id,
		"importance": upd.Importance,
		"accessed":   upd.Accessed,
		"delta":      upd.AccessCountDelta,
		"turns":      turns,
		"version":    expectedVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		// Version mismatch (or record gone): CAS not applied.
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// RetireMemories soft-retires the given records, excluding them from
// retrieval while preserving them for audit. Already-retired records are
// left untouched. Returns the number of records retired.
func (c *Client) RetireMemories(ctx context.Context, now time.Time, ids ...string) (int, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	retired := 0
	for _, id := range ids {
		results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, `
			UPDATE type::record("memory", $id) SET
				retired_at = $now,
				version += 1
			WHERE retired_at IS NONE
			RETURN AFTER
		`, map[string]any{"id": id, "now": now})
		if err != nil {
			return retired, fmt.Errorf("retire memory %s: %w", id, wrapQueryError(err))
		}
		if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
			retired++
		}
	}
	return retired, nil
}

// DeleteMemories hard-deletes records. This is an explicit maintenance
// operation, never an automatic side effect of scoring.
func (c *Client) DeleteMemories(ctx context.Context, ids ...string) (int, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	deleted := 0
	for _, id := range ids {
		results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, `
			DELETE type::record("memory", $id) RETURN BEFORE
		`, map[string]any{"id": id})
		if err != nil {
			return deleted, fmt.Errorf("delete memory %s: %w", id, wrapQueryError(err))
		}
		if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
			deleted++
		}
	}
	return deleted, nil
}

// ListStaleEmbeddings returns active records whose embedding model differs
// from the active one. These are flagged for lazy re-encoding, never
// invalidated outright.
func (c *Client) ListStaleEmbeddings(ctx context.Context, activeModel string, limit int) ([]models.MemoryRecord, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	sql := `
		SELECT * FROM memory
		WHERE embedding_model != $model AND retired_at IS NONE
		ORDER BY first_seen ASC, id ASC
	`
	vars := map[string]any{"model": activeModel}
	if limit > 0 {
		sql += ` LIMIT $limit`
		vars["limit"] = limit
	}

	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list stale embeddings: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.MemoryRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// CountStaleEmbeddings counts active records pending re-encoding.
func (c *Client) CountStaleEmbeddings(ctx context.Context, activeModel string) (int, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]struct{ C int }](ctx, c.db, `
		SELECT count() AS c FROM memory
		WHERE embedding_model != $model AND retired_at IS NONE
		GROUP ALL
	`, map[string]any{"model": activeModel})
	if err != nil {
		return 0, fmt.Errorf("count stale embeddings: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}

// CountStaleEmbeddingsForOwner counts one owner's active records pending
// re-encoding. Re-embed jobs sweep the whole store, but per-owner stats
// must not leak other owners' backlog.
func (c *Client) CountStaleEmbeddingsForOwner(ctx context.Context, owner models.Owner, activeModel string) (int, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]struct{ C int }](ctx, c.db, `
		SELECT count() AS c FROM memory
		WHERE owner_kind = $owner_kind AND owner_id = $owner_id
			AND embedding_model != $model AND retired_at IS NONE
		GROUP ALL
	`, map[string]any{"owner_kind": owner.Kind, "owner_id": owner.ID, "model": activeModel})
	if err != nil {
		return 0, fmt.Errorf("count stale embeddings for owner: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}

// UpdateEmbedding replaces a record's embedding after re-encoding.
func (c *Client) UpdateEmbedding(ctx context.Context, id string, embedding []float32, model string) error {
	defer c.record(metrics.OpDBQuery, time.Now())

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("memory", $id) SET
			embedding = $embedding,
			embedding_model = $model,
			version += 1
	`, map[string]any{"id": id, "embedding": embedding, "model": model})
	if err != nil {
		return fmt.Errorf("update embedding: %w", wrapQueryError(err))
	}
	return nil
}

// KindCount pairs a memory kind with its record count.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// CountMemories returns active record counts per kind for an owner.
func (c *Client) CountMemories(ctx context.Context, owner models.Owner) ([]KindCount, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]KindCount](ctx, c.db, `
		SELECT kind, count() AS count FROM memory
		WHERE owner_kind = $owner_kind AND owner_id = $owner_id AND retired_at IS NONE
		GROUP BY kind ORDER BY count DESC
	`, map[string]any{"owner_kind": owner.Kind, "owner_id": owner.ID})
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []KindCount{}, nil
	}
	return (*results)[0].Result, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
