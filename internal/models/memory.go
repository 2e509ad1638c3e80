// Package models defines data structures for the Recall memory engine.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// MemoryKind classifies an atomic memory record.
type MemoryKind string

const (
	KindFact          MemoryKind = "fact"
	KindPreference    MemoryKind = "preference"
	KindDecision      MemoryKind = "decision"
	KindInsight       MemoryKind = "insight"
	KindEntityMention MemoryKind = "entity_mention"
)

// Kinds lists all valid memory kinds in a stable order.
var Kinds = []MemoryKind{KindFact, KindPreference, KindDecision, KindInsight, KindEntityMention}

// Valid reports whether k is a known memory kind.
func (k MemoryKind) Valid() bool {
	switch k {
	case KindFact, KindPreference, KindDecision, KindInsight, KindEntityMention:
		return true
	}
	return false
}

// Owner addresses records by the entity they belong to (a persona or a
// conversation). The engine treats the identifier as opaque.
type Owner struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Key returns the canonical "kind:id" form used for lease keys and logging.
func (o Owner) Key() string {
	return o.Kind + ":" + o.ID
}

// MemoryRecord is an atomic, durable fact/preference/decision/mention
// extracted from conversation. Content is immutable after creation;
// reinforcement only touches importance, source turns and access tracking.
type MemoryRecord struct {
	ID              surrealmodels.RecordID `json:"id"`
	OwnerKind       string                 `json:"owner_kind"`
	OwnerID         string                 `json:"owner_id"`
	Kind            MemoryKind             `json:"kind"`
	Content         string                 `json:"content"`
	Importance      float64                `json:"importance"`
	RelatedEntities []string               `json:"related_entities,omitempty"`
	Embedding       []float32              `json:"embedding,omitempty"`
	EmbeddingModel  string                 `json:"embedding_model,omitempty"`
	SourceTurnIDs   []string               `json:"source_turn_ids,omitempty"`
	FirstSeen       time.Time              `json:"first_seen,omitempty"`
	Accessed        time.Time              `json:"accessed,omitempty"`
	AccessCount     int                    `json:"access_count"`
	// Version guards optimistic-concurrency updates. Incremented on every write.
	Version   int        `json:"version"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`

	// RelevanceScore is derived on read, never the source of truth.
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// Owner returns the record's owner address.
func (m *MemoryRecord) Owner() Owner {
	return Owner{Kind: m.OwnerKind, ID: m.OwnerID}
}

// Retired reports whether the record has been soft-retired from retrieval.
func (m *MemoryRecord) Retired() bool {
	return m.RetiredAt != nil
}

// CandidateMemory is a raw extraction-provider candidate. Storage is decided
// by the engine via dedup-by-reinforcement.
type CandidateMemory struct {
	Kind            MemoryKind `json:"kind"`
	Content         string     `json:"content"`
	Importance      float64    `json:"importance"`
	RelatedEntities []string   `json:"related_entities,omitempty"`
}

// MemoryUpdate describes a CAS mutation of a memory record's mutable fields.
type MemoryUpdate struct {
	Importance       float64
	Accessed         time.Time
	AccessCountDelta int
	// AppendSourceTurn, when non-empty, is unioned into source_turn_ids.
	AppendSourceTurn string
}
