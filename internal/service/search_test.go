package service

import (
	"context"
	"testing"
	"time"

	"github.com/perso-labs/recall/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T, svc *MemoryService, owner models.Owner, kind models.MemoryKind, content string, importance float64) *models.MemoryRecord {
	t.Helper()
	res, err := svc.UpsertCandidate(context.Background(), owner, models.CandidateMemory{
		Kind: kind, Content: content, Importance: importance,
	}, "turn:seed")
	require.NoError(t, err)
	require.False(t, res.Reinforced, "seed content must not collide: %q", content)
	return res.Memory
}

// storeMemory inserts a record directly, bypassing upsert dedup, for
// tests that need several records on the exact same embedding.
func storeMemory(t *testing.T, store Store, owner models.Owner, content string, importance float64, embedding []float32, model string, accessed time.Time) *models.MemoryRecord {
	t.Helper()
	rec, err := store.CreateMemory(context.Background(), &models.MemoryRecord{
		OwnerKind:      owner.Kind,
		OwnerID:        owner.ID,
		Kind:           models.KindFact,
		Content:        content,
		Importance:     importance,
		Embedding:      embedding,
		EmbeddingModel: model,
		SourceTurnIDs:  []string{"turn:seed"},
		FirstSeen:      accessed,
		Accessed:       accessed,
	})
	require.NoError(t, err)
	return rec
}

func TestSearchEmptyScope(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryService(newFakeStore(), newStubEmbedder())

	results, err := svc.Search(ctx, ownerFor("nobody"), "anything", SearchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	embedder.pin("query about tea", unitVector(0))
	embedder.pin("prefers green tea", unitVector(0))     // identical to query
	embedder.pin("works on the billing team", unitVector(3)) // orthogonal
	svc := newMemoryService(newFakeStore(), embedder)
	owner := ownerFor("search-rank")

	seedMemory(t, svc, owner, models.KindPreference, "prefers green tea", 0.5)
	seedMemory(t, svc, owner, models.KindFact, "works on the billing team", 0.5)

	results, err := svc.Search(ctx, owner, "query about tea", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "prefers green tea", results[0].Memory.Content)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestSearchCompositeScoreWeights(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	embedder.pin("q", unitVector(0))
	embedder.pin("hit", unitVector(0))
	svc := newMemoryService(newFakeStore(), embedder)
	owner := ownerFor("search-weights")

	rec := seedMemory(t, svc, owner, models.KindFact, "hit", 0.8)

	results, err := svc.Search(ctx, owner, "q", SearchOptions{SkipAccessTracking: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	w := testPolicy().Search
	want := w.SimilarityWeight*results[0].Similarity +
		w.RelevanceWeight*results[0].Relevance +
		w.ImportanceWeight*rec.Importance
	assert.InDelta(t, want, results[0].Score, 1e-9)
	assert.GreaterOrEqual(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestSearchPrefersRecentlyAccessedUnderDecay(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	// Both equally similar to the query.
	embedder.pin("q", unitVector(0))
	store := newFakeStore()
	svc := newMemoryService(store, embedder)
	owner := ownerFor("search-decay")

	// Same importance, but accessed 90 days apart.
	base := time.Now().UTC()
	svc.now = func() time.Time { return base }
	storeMemory(t, store, owner, "stale fact", 0.6, unitVector(0), embedder.Model(), base.Add(-90*24*time.Hour))
	storeMemory(t, store, owner, "recent fact", 0.6, unitVector(0), embedder.Model(), base)

	results, err := svc.Search(ctx, owner, "q", SearchOptions{SkipAccessTracking: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "recent fact", results[0].Memory.Content)
	assert.Greater(t, results[0].Relevance, results[1].Relevance)
}

func TestSearchMinRelevanceFilter(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	embedder.pin("q", unitVector(0))
	store := newFakeStore()
	svc := newMemoryService(store, embedder)
	owner := ownerFor("search-floor")

	// Equally similar hits, one decayed far below the other.
	base := time.Now().UTC()
	svc.now = func() time.Time { return base }
	storeMemory(t, store, owner, "faded fact", 0.6, unitVector(0), embedder.Model(), base.Add(-120*24*time.Hour))
	kept := storeMemory(t, store, owner, "live fact", 0.6, unitVector(0), embedder.Model(), base)

	floor := 0.3
	results, err := svc.Search(ctx, owner, "q", SearchOptions{
		MinRelevance:       &floor,
		SkipAccessTracking: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, kept.ID, results[0].Memory.ID)
	assert.GreaterOrEqual(t, results[0].Relevance, floor)

	// Without the floor both come back.
	results, err = svc.Search(ctx, owner, "q", SearchOptions{SkipAccessTracking: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchSkipsEncodingMismatch(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	embedder.pin("q", unitVector(0))
	embedder.pin("old encoding", unitVector(0))
	embedder.pin("current encoding", unitVector(0))
	store := newFakeStore()
	svc := newMemoryService(store, embedder)
	owner := ownerFor("search-mismatch")

	embedder.model = "stub-embed-v0"
	seedMemory(t, svc, owner, models.KindFact, "old encoding", 0.9)
	embedder.model = "stub-embed-v1"
	seedMemory(t, svc, owner, models.KindFact, "current encoding", 0.5)

	// The stale record is silently skipped, never an error.
	results, err := svc.Search(ctx, owner, "q", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "current encoding", results[0].Memory.Content)
}

func TestSearchKindFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	embedder.pin("q", unitVector(0))
	svc := newMemoryService(newFakeStore(), embedder)
	owner := ownerFor("search-filter")

	seedMemory(t, svc, owner, models.KindFact, "fact one", 0.5)
	seedMemory(t, svc, owner, models.KindFact, "fact two", 0.5)
	seedMemory(t, svc, owner, models.KindDecision, "a decision", 0.5)

	kind := models.KindFact
	results, err := svc.Search(ctx, owner, "q", SearchOptions{Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = svc.Search(ctx, owner, "q", SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchRecordsAccessOnReturnedOnly(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	embedder.pin("q", unitVector(0))
	embedder.pin("returned", unitVector(0))
	embedder.pin("not returned", unitVector(4))
	store := newFakeStore()
	svc := newMemoryService(store, embedder)
	owner := ownerFor("search-access")

	hit := seedMemory(t, svc, owner, models.KindFact, "returned", 0.5)
	miss := seedMemory(t, svc, owner, models.KindFact, "not returned", 0.5)

	results, err := svc.Search(ctx, owner, "q", SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Retrieval counts as access for the returned record.
	assert.Equal(t, 1, results[0].Memory.AccessCount)

	gotHit, err := store.GetMemory(ctx, models.MustRecordIDString(hit.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, gotHit.AccessCount)

	gotMiss, err := store.GetMemory(ctx, models.MustRecordIDString(miss.ID))
	require.NoError(t, err)
	assert.Equal(t, 0, gotMiss.AccessCount)
}

func TestSearchExcludesRetired(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	embedder.pin("q", unitVector(0))
	embedder.pin("gone", unitVector(0))
	store := newFakeStore()
	svc := newMemoryService(store, embedder)
	owner := ownerFor("search-retired")

	rec := seedMemory(t, svc, owner, models.KindFact, "gone", 0.9)
	_, err := store.RetireMemories(ctx, time.Now().UTC(), models.MustRecordIDString(rec.ID))
	require.NoError(t, err)

	results, err := svc.Search(ctx, owner, "q", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder()
	embedder.pin("q", unitVector(0))
	store := newFakeStore()
	svc := newMemoryService(store, embedder)
	owner := ownerFor("search-ties")

	// Three records indistinguishable by every score component.
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	storeMemory(t, store, owner, "twin a", 0.5, unitVector(0), embedder.Model(), now)
	storeMemory(t, store, owner, "twin b", 0.5, unitVector(0), embedder.Model(), now)
	storeMemory(t, store, owner, "twin c", 0.5, unitVector(0), embedder.Model(), now)

	first, err := svc.Search(ctx, owner, "q", SearchOptions{SkipAccessTracking: true})
	require.NoError(t, err)
	second, err := svc.Search(ctx, owner, "q", SearchOptions{SkipAccessTracking: true})
	require.NoError(t, err)

	require.Len(t, first, 3)
	for i := range first {
		assert.Equal(t, first[i].Memory.ID, second[i].Memory.ID, "tie ordering must be stable at rank %d", i)
	}
}
