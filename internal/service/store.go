// Package service provides the memory engine's business logic.
package service

import (
	"context"
	"time"

	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/models"
)

// Store is the persistence surface the engine runs against. *db.Client is
// the production implementation; tests substitute an in-memory fake.
type Store interface {
	CreateMemory(ctx context.Context, rec *models.MemoryRecord) (*models.MemoryRecord, error)
	GetMemory(ctx context.Context, id string) (*models.MemoryRecord, error)
	ListMemories(ctx context.Context, owner models.Owner, opts db.MemoryListOptions) ([]models.MemoryRecord, error)
	UpdateMemoryCAS(ctx context.Context, id string, expectedVersion int, upd models.MemoryUpdate) (*models.MemoryRecord, error)
	RetireMemories(ctx context.Context, now time.Time, ids ...string) (int, error)
	DeleteMemories(ctx context.Context, ids ...string) (int, error)
	ListStaleEmbeddings(ctx context.Context, activeModel string, limit int) ([]models.MemoryRecord, error)
	CountStaleEmbeddings(ctx context.Context, activeModel string) (int, error)
	CountStaleEmbeddingsForOwner(ctx context.Context, owner models.Owner, activeModel string) (int, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32, model string) error
	CountMemories(ctx context.Context, owner models.Owner) ([]db.KindCount, error)

	AppendTurn(ctx context.Context, owner models.Owner, role, content string) (*models.Turn, error)
	RecentTurns(ctx context.Context, owner models.Owner, k int) ([]models.Turn, error)
	TurnRange(ctx context.Context, owner models.Owner, start, end int) ([]models.Turn, error)
	MaxTurnSeq(ctx context.Context, owner models.Owner) (int, error)

	CreateSummary(ctx context.Context, s *models.SummaryRecord) (*models.SummaryRecord, error)
	LatestSummary(ctx context.Context, owner models.Owner) (*models.SummaryRecord, error)
	ListSummaries(ctx context.Context, owner models.Owner, includeRetired bool) ([]models.SummaryRecord, error)
	LastSummarizedSeq(ctx context.Context, owner models.Owner) (int, error)
	RetireSummary(ctx context.Context, id string, now time.Time) error

	AcquireLease(ctx context.Context, owner models.Owner, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, owner models.Owner, holder string) error
}

var _ Store = (*db.Client)(nil)

// Embedder produces embedding vectors tagged with a model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// Generator is the text-generation surface the engine needs from an LLM.
type Generator interface {
	ExtractMemories(ctx context.Context, role, content string) (string, error)
	SummarizeTurns(ctx context.Context, turns []models.Turn) (string, error)
}
