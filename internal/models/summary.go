package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SummaryRecord is an immutable condensation of a contiguous turn range.
// Ranges for one owner never overlap and advance monotonically. Correcting a
// bad summary means creating a superseding record and retiring the old one.
type SummaryRecord struct {
	ID                surrealmodels.RecordID `json:"id"`
	OwnerKind         string                 `json:"owner_kind"`
	OwnerID           string                 `json:"owner_id"`
	SummaryText       string                 `json:"summary_text"`
	TurnStart         int                    `json:"turn_start"`
	TurnEnd           int                    `json:"turn_end"`
	TurnCount         int                    `json:"turn_count"`
	KeyTopics         []string               `json:"key_topics,omitempty"`
	EntitiesDiscussed []string               `json:"entities_discussed,omitempty"`
	DecisionsMade     []string               `json:"decisions_made,omitempty"`
	Embedding         []float32              `json:"embedding,omitempty"`
	EmbeddingModel    string                 `json:"embedding_model,omitempty"`
	FirstTurnAt       *time.Time             `json:"first_turn_at,omitempty"`
	LastTurnAt        *time.Time             `json:"last_turn_at,omitempty"`
	Created           time.Time              `json:"created,omitempty"`
	RetiredAt         *time.Time             `json:"retired_at,omitempty"`
}

// Owner returns the record's owner address.
func (s *SummaryRecord) Owner() Owner {
	return Owner{Kind: s.OwnerKind, ID: s.OwnerID}
}

// SummaryDraft is the summarization provider's output before it is persisted.
type SummaryDraft struct {
	Text      string   `json:"text"`
	Topics    []string `json:"topics,omitempty"`
	Entities  []string `json:"entities,omitempty"`
	Decisions []string `json:"decisions,omitempty"`
}
