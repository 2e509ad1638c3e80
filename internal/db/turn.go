package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

const appendTurnRetries = 5

// AppendTurn stores a conversation turn with the next dense sequence number
// for its owner. The unique seq_key index rejects concurrent appends that
// raced to the same slot; those are retried with a fresh sequence read.
func (c *Client) AppendTurn(ctx context.Context, owner models.Owner, role, content string) (*models.Turn, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	sql := `
		LET $next = ((SELECT VALUE math::max(seq) FROM turn
			WHERE owner_kind = $owner_kind AND owner_id = $owner_id
			GROUP ALL)[0] ?? 0) + 1;
		CREATE turn SET
			owner_kind = $owner_kind,
			owner_id = $owner_id,
			seq = $next,
			role = $role,
			content = $content,
			created = time::now()
		RETURN AFTER;
	`
	vars := map[string]any{
		"owner_kind": owner.Kind,
		"owner_id":   owner.ID,
		"role":       role,
		"content":    content,
	}

	var lastErr error
	for attempt := 0; attempt < appendTurnRetries; attempt++ {
		results, err := surrealdb.Query[[]models.Turn](ctx, c.db, sql, vars)
		if err != nil {
			lastErr = wrapQueryError(err)
			if errors.Is(lastErr, ErrAlreadyExists) || errors.Is(lastErr, ErrTransactionConflict) {
				continue
			}
			return nil, fmt.Errorf("append turn: %w", lastErr)
		}
		if results == nil || len(*results) == 0 {
			return nil, fmt.Errorf("append turn: no result returned")
		}
		created := (*results)[len(*results)-1].Result
		if len(created) == 0 {
			return nil, fmt.Errorf("append turn: no result returned")
		}
		return &created[0], nil
	}
	return nil, fmt.Errorf("append turn: retries exhausted: %w", lastErr)
}

// RecentTurns returns the last k turns for an owner in chronological order.
func (c *Client) RecentTurns(ctx context.Context, owner models.Owner, k int) ([]models.Turn, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	if k <= 0 {
		return []models.Turn{}, nil
	}

	results, err := surrealdb.Query[[]models.Turn](ctx, c.db, `
		SELECT * FROM turn
		WHERE owner_kind = $owner_kind AND owner_id = $owner_id
		ORDER BY seq DESC LIMIT $k
	`, map[string]any{"owner_kind": owner.Kind, "owner_id": owner.ID, "k": k})
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.Turn{}, nil
	}
	turns := (*results)[0].Result
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// TurnRange returns an owner's turns with start <= seq <= end, ordered by
// sequence.
func (c *Client) TurnRange(ctx context.Context, owner models.Owner, start, end int) ([]models.Turn, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Turn](ctx, c.db, `
		SELECT * FROM turn
		WHERE owner_kind = $owner_kind AND owner_id = $owner_id
			AND seq >= $start AND seq <= $end
		ORDER BY seq ASC
	`, map[string]any{"owner_kind": owner.Kind, "owner_id": owner.ID, "start": start, "end": end})
	if err != nil {
		return nil, fmt.Errorf("turn range: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.Turn{}, nil
	}
	return (*results)[0].Result, nil
}

// MaxTurnSeq returns the highest sequence number stored for an owner, or 0
// when the owner has no turns.
func (c *Client) MaxTurnSeq(ctx context.Context, owner models.Owner) (int, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]int](ctx, c.db, `
		SELECT VALUE math::max(seq) FROM turn
		WHERE owner_kind = $owner_kind AND owner_id = $owner_id
		GROUP ALL
	`, map[string]any{"owner_kind": owner.Kind, "owner_id": owner.ID})
	if err != nil {
		return 0, fmt.Errorf("max turn seq: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0], nil
}
