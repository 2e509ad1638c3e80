package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/perso-labs/recall/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryService(store Store, embedder Embedder) *MemoryService {
	return NewMemoryService(store, embedder, testPolicy(), nil)
}

func TestUpsertCandidateCreates(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newMemoryService(store, newStubEmbedder())
	owner := ownerFor("upsert-create")

	res, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind:       models.KindFact,
		Content:    "the deploy window is Tuesday",
		Importance: 0.7,
	}, "turn:0001")
	require.NoError(t, err)

	assert.False(t, res.Reinforced)
	assert.Equal(t, "the deploy window is Tuesday", res.Memory.Content)
	assert.Equal(t, 0, res.Memory.AccessCount)
	assert.Equal(t, []string{"turn:0001"}, res.Memory.SourceTurnIDs)
	assert.Equal(t, "stub-embed-v1", res.Memory.EmbeddingModel)
}

func TestUpsertCandidateReinforcesNearDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	embedder := newStubEmbedder()
	// Pin both phrasings onto the same vector: certain duplicates.
	embedder.pin("the deploy window is Tuesday", unitVector(0))
	embedder.pin("deploys happen on Tuesdays", unitVector(0))
	svc := newMemoryService(store, embedder)
	owner := ownerFor("upsert-dup")

	first, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindFact, Content: "the deploy window is Tuesday", Importance: 0.6,
	}, "turn:0001")
	require.NoError(t, err)

	second, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindFact, Content: "deploys happen on Tuesdays", Importance: 0.5,
	}, "turn:0002")
	require.NoError(t, err)

	assert.True(t, second.Reinforced)
	assert.Equal(t, first.Memory.ID, second.Memory.ID)
	// The stored content stays verbatim; reinforcement never rewrites it.
	assert.Equal(t, "the deploy window is Tuesday", second.Memory.Content)
	assert.Equal(t, 1, second.Memory.AccessCount)
	assert.ElementsMatch(t, []string{"turn:0001", "turn:0002"}, second.Memory.SourceTurnIDs)
	// max(0.6, 0.5) + bump
	assert.InDelta(t, 0.6+testPolicy().Reinforcement.ImportanceBump, second.Memory.Importance, 1e-9)

	// Exactly one record exists.
	all, err := store.ListMemories(ctx, owner, listAll())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertCandidateDistinctContentCreatesBoth(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	embedder := newStubEmbedder()
	embedder.pin("likes green tea", unitVector(0))
	embedder.pin("works at night", unitVector(1))
	svc := newMemoryService(store, embedder)
	owner := ownerFor("upsert-distinct")

	_, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindPreference, Content: "likes green tea", Importance: 0.4,
	}, "turn:0001")
	require.NoError(t, err)
	res, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindPreference, Content: "works at night", Importance: 0.4,
	}, "turn:0002")
	require.NoError(t, err)
	assert.False(t, res.Reinforced)

	all, err := store.ListMemories(ctx, owner, listAll())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpsertCandidateIgnoresOtherKinds(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	embedder := newStubEmbedder()
	// Identical vectors but different kinds: no cross-kind dedup.
	embedder.pin("Tuesday matters", unitVector(0))
	svc := newMemoryService(store, embedder)
	owner := ownerFor("upsert-kinds")

	_, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindFact, Content: "Tuesday matters", Importance: 0.5,
	}, "turn:0001")
	require.NoError(t, err)
	res, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindDecision, Content: "Tuesday matters", Importance: 0.5,
	}, "turn:0002")
	require.NoError(t, err)
	assert.False(t, res.Reinforced)
}

func TestUpsertCandidateSkipsStaleEncoding(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	embedder := newStubEmbedder()
	embedder.pin("same idea", unitVector(0))
	svc := newMemoryService(store, embedder)
	owner := ownerFor("upsert-stale")

	first, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindFact, Content: "same idea", Importance: 0.5,
	}, "turn:0001")
	require.NoError(t, err)

	// Simulate a model upgrade: the old record keeps its old tag and
	// becomes incomparable instead of being treated as a duplicate.
	embedder.model = "stub-embed-v2"
	res, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindFact, Content: "same idea", Importance: 0.5,
	}, "turn:0002")
	require.NoError(t, err)

	assert.False(t, res.Reinforced)
	assert.NotEqual(t, first.Memory.ID, res.Memory.ID)
}

func TestRecordAccessConcurrentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newMemoryService(store, newStubEmbedder())
	owner := ownerFor("access-concurrent")

	created, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindFact, Content: "hot record", Importance: 0.5,
	}, "turn:0001")
	require.NoError(t, err)
	id := models.MustRecordIDString(created.Memory.ID)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordAccess(ctx, id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordAccess failed: %v", err)
	}

	got, err := store.GetMemory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, n, got.AccessCount, "every concurrent access must land exactly once")
}

func TestRecordAccessRefreshesTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newMemoryService(store, newStubEmbedder())
	owner := ownerFor("access-ts")

	created, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindFact, Content: "aging record", Importance: 0.5,
	}, "turn:0001")
	require.NoError(t, err)
	id := models.MustRecordIDString(created.Memory.ID)

	later := time.Now().UTC().Add(time.Hour)
	svc.now = func() time.Time { return later }

	after, err := svc.RecordAccess(ctx, id)
	require.NoError(t, err)
	assert.True(t, after.Accessed.Equal(later))
	assert.Equal(t, 1, after.AccessCount)
}

func TestRetireFadedAndPrune(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newMemoryService(store, newStubEmbedder())
	owner := ownerFor("retire")

	fresh, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindFact, Content: "fresh fact", Importance: 0.9,
	}, "turn:0001")
	require.NoError(t, err)
	faded, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindEntityMention, Content: "mentioned once, long ago", Importance: 0.3,
	}, "turn:0002")
	require.NoError(t, err)

	// Seventy days out the entity mention has been below the floor for
	// more than a full retention window while the high-importance fact
	// is still comfortably above it.
	svc.now = func() time.Time { return time.Now().UTC().Add(70 * 24 * time.Hour) }

	dry, err := svc.RetireFaded(ctx, owner, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Contains(t, dry.Affected, models.MustRecordIDString(faded.Memory.ID))

	// Dry run wrote nothing.
	all, err := store.ListMemories(ctx, owner, listAll())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	res, err := svc.RetireFaded(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Examined)

	active, err := store.ListMemories(ctx, owner, listAll())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.Memory.ID, active[0].ID)

	// Jump past the retention window and prune.
	svc.now = func() time.Time { return time.Now().UTC().Add(105 * 24 * time.Hour) }
	pruned, err := svc.PruneRetired(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned.Pruned)

	_, err = store.GetMemory(ctx, models.MustRecordIDString(faded.Memory.ID))
	assert.Error(t, err)
}

func TestRetireFadedSparesRecentlyFaded(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newMemoryService(store, newStubEmbedder())
	owner := ownerFor("retire-grace")

	rec, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
		Kind: models.KindEntityMention, Content: "briefly relevant", Importance: 0.3,
	}, "turn:0001")
	require.NoError(t, err)

	// Sixty-two days out the record is below the floor today, but one
	// retention window ago it was still above it. Retirement waits until
	// the record has been faded for the whole window.
	svc.now = func() time.Time { return time.Now().UTC().Add(62 * 24 * time.Hour) }

	res, err := svc.RetireFaded(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Retired)
	assert.Empty(t, res.Affected)

	active, err := store.ListMemories(ctx, owner, listAll())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, rec.Memory.ID, active[0].ID)
}

func TestStatsStaleEmbeddingsScopedToOwner(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	embedder := newStubEmbedder()
	svc := newMemoryService(store, embedder)
	owner := ownerFor("stats-scope")
	other := ownerFor("stats-other")

	now := time.Now().UTC()
	storeMemory(t, store, owner, "current encoding", 0.5, unitVector(0), embedder.Model(), now)
	storeMemory(t, store, owner, "old encoding", 0.5, unitVector(1), "all-minilm:l5", now)
	// Another owner's backlog must not bleed into this owner's stats.
	storeMemory(t, store, other, "also old", 0.5, unitVector(2), "all-minilm:l5", now)

	stats, err := svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.StaleEmbeddings)
}

func TestSimilarPairs(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	embedder := newStubEmbedder()
	// Similarity ~0.91: close enough to flag, not enough to have been
	// merged by the reinforcement threshold on insert.
	a := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	b := []float32{1, 0.46, 0, 0, 0, 0, 0, 0}
	embedder.pin("close one", a)
	embedder.pin("close two", b)
	embedder.pin("far away", unitVector(5))
	svc := newMemoryService(store, embedder)
	owner := ownerFor("pairs")

	for _, content := range []string{"close one", "close two", "far away"} {
		_, err := svc.UpsertCandidate(ctx, owner, models.CandidateMemory{
			Kind: models.KindFact, Content: content, Importance: 0.5,
		}, "turn:0001")
		require.NoError(t, err)
	}

	pairs, err := svc.SimilarPairs(ctx, owner, 0.9)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Greater(t, pairs[0].Similarity, 0.9)
}
