package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Turn is a single raw conversation turn. Seq is 1-based and dense per owner;
// the summarized/unsummarized split is derived from summary turn ranges, not
// stored on the turn itself.
type Turn struct {
	ID        surrealmodels.RecordID `json:"id"`
	OwnerKind string                 `json:"owner_kind"`
	OwnerID   string                 `json:"owner_id"`
	Seq       int                    `json:"seq"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Created   time.Time              `json:"created,omitempty"`
}

// Owner returns the turn's owner address.
func (t *Turn) Owner() Owner {
	return Owner{Kind: t.OwnerKind, ID: t.OwnerID}
}
