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

// AcquireLease takes the consolidation lease for an owner, either by
// creating it or by stealing one whose TTL has lapsed. Returns false when
// another holder has a live lease. A create that loses a race hits the
// unique owner_key index and is reported as not acquired rather than as an
// error.
func (c *Client) AcquireLease(ctx context.Context, owner models.Owner, holder string, ttl time.Duration) (bool, error) {
	defer c.record(metrics.OpDBQuery, time.Now())

	sql := `
		LET $existing = (SELECT * FROM lease WHERE owner_key = $key)[0];
		IF $existing IS NONE {
			CREATE lease SET
				owner_kind = $owner_kind,
				owner_id = $owner_id,
				holder = $holder,
				expires = $expires;
			RETURN true;
		} ELSE IF $existing.expires < time::now() {
			UPDATE $existing.id SET holder = $holder, expires = $expires;
			RETURN true;
		} ELSE {
			RETURN false;
		};
	`

	results, err := surrealdb.Query[bool](ctx, c.db, sql, map[string]any{
		"key":        owner.Key(),
		"owner_kind": owner.Kind,
		"owner_id":   owner.ID,
		"holder":     holder,
		"expires":    time.Now().Add(ttl),
	})
	if err != nil {
		wrapped := wrapQueryError(err)
		if errors.Is(wrapped, ErrAlreadyExists) || errors.Is(wrapped, ErrTransactionConflict) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lease: %w", wrapped)
	}
	if results == nil || len(*results) == 0 {
		return false, fmt.Errorf("acquire lease: no result returned")
	}
	return (*results)[len(*results)-1].Result, nil
}

// ReleaseLease drops the owner's lease if this holder still owns it. A
// lease stolen after expiry is left alone so the new holder keeps it.
func (c *Client) ReleaseLease(ctx context.Context, owner models.Owner, holder string) error {
	defer c.record(metrics.OpDBQuery, time.Now())

	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE lease WHERE owner_key = $key AND holder = $holder
	`, map[string]any{"key": owner.Key(), "holder": holder})
	if err != nil {
		return fmt.Errorf("release lease: %w", wrapQueryError(err))
	}
	return nil
}
