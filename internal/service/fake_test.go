package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// fakeStore is an in-memory Store with the same concurrency semantics as
// the SurrealDB client: version-guarded memory updates, unique summary
// ranges, and expiring leases.
type fakeStore struct {
	mu        sync.Mutex
	memories  map[string]*models.MemoryRecord
	turns     map[string][]models.Turn
	summaries map[string][]models.SummaryRecord
	leases    map[string]fakeLease
	nextID    int
}

type fakeLease struct {
	holder  string
	expires time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories:  make(map[string]*models.MemoryRecord),
		turns:     make(map[string][]models.Turn),
		summaries: make(map[string][]models.SummaryRecord),
		leases:    make(map[string]fakeLease),
	}
}

var _ Store = (*fakeStore)(nil)

func (f *fakeStore) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%04d", prefix, f.nextID)
}

func copyMemory(rec *models.MemoryRecord) *models.MemoryRecord {
	c := *rec
	c.RelatedEntities = slices.Clone(rec.RelatedEntities)
	c.Embedding = slices.Clone(rec.Embedding)
	c.SourceTurnIDs = slices.Clone(rec.SourceTurnIDs)
	return &c
}

func (f *fakeStore) CreateMemory(_ context.Context, rec *models.MemoryRecord) (*models.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := copyMemory(rec)
	stored.ID = surrealmodels.NewRecordID("memory", f.newID("m"))
	stored.Version = 0
	f.memories[models.MustRecordIDString(stored.ID)] = stored
	return copyMemory(stored), nil
}

func (f *fakeStore) GetMemory(_ context.Context, id string) (*models.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.memories[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return copyMemory(rec), nil
}

func (f *fakeStore) ListMemories(_ context.Context, owner models.Owner, opts db.MemoryListOptions) ([]models.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.MemoryRecord
	for _, rec := range f.memories {
		if rec.OwnerKind != owner.Kind || rec.OwnerID != owner.ID {
			continue
		}
		if opts.Kind != nil && rec.Kind != *opts.Kind {
			continue
		}
		if !opts.IncludeRetired && rec.Retired() {
			continue
		}
		if opts.RequireEmbedding && len(rec.Embedding) == 0 {
			continue
		}
		out = append(out, *copyMemory(rec))
	}
	slices.SortFunc(out, func(a, b models.MemoryRecord) int {
		if c := a.FirstSeen.Compare(b.FirstSeen); c != 0 {
			return c
		}
		return strings.Compare(models.MustRecordIDString(a.ID), models.MustRecordIDString(b.ID))
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateMemoryCAS(_ context.Context, id string, expectedVersion int, upd models.MemoryUpdate) (*models.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.memories[id]
	if !ok || rec.Version != expectedVersion {
		return nil, nil
	}

	rec.Importance = upd.Importance
	rec.Accessed = upd.Accessed
	rec.AccessCount += upd.AccessCountDelta
	if upd.AppendSourceTurn != "" && !slices.Contains(rec.SourceTurnIDs, upd.AppendSourceTurn) {
		rec.SourceTurnIDs = append(rec.SourceTurnIDs, upd.AppendSourceTurn)
	}
	rec.Version++
	return copyMemory(rec), nil
}

func (f *fakeStore) RetireMemories(_ context.Context, now time.Time, ids ...string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	retired := 0
	for _, id := range ids {
		rec, ok := f.memories[id]
		if !ok || rec.Retired() {
			continue
		}
		at := now
		rec.RetiredAt = &at
		rec.Version++
		retired++
	}
	return retired, nil
}

func (f *fakeStore) DeleteMemories(_ context.Context, ids ...string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := f.memories[id]; ok {
			delete(f.memories, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) ListStaleEmbeddings(_ context.Context, activeModel string, limit int) ([]models.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.MemoryRecord
	for _, rec := range f.memories {
		if rec.Retired() || rec.EmbeddingModel == activeModel {
			continue
		}
		out = append(out, *copyMemory(rec))
	}
	slices.SortFunc(out, func(a, b models.MemoryRecord) int {
		return strings.Compare(models.MustRecordIDString(a.ID), models.MustRecordIDString(b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountStaleEmbeddings(ctx context.Context, activeModel string) (int, error) {
	stale, err := f.ListStaleEmbeddings(ctx, activeModel, 0)
	return len(stale), err
}

func (f *fakeStore) CountStaleEmbeddingsForOwner(ctx context.Context, owner models.Owner, activeModel string) (int, error) {
	stale, err := f.ListStaleEmbeddings(ctx, activeModel, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range stale {
		if rec.OwnerKind == owner.Kind && rec.OwnerID == owner.ID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UpdateEmbedding(_ context.Context, id string, embedding []float32, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.memories[id]
	if !ok {
		return db.ErrNotFound
	}
	rec.Embedding = slices.Clone(embedding)
	rec.EmbeddingModel = model
	rec.Version++
	return nil
}

func (f *fakeStore) CountMemories(_ context.Context, owner models.Owner) ([]db.KindCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	byKind := map[string]int{}
	for _, rec := range f.memories {
		if rec.OwnerKind != owner.Kind || rec.OwnerID != owner.ID || rec.Retired() {
			continue
		}
		byKind[string(rec.Kind)]++
	}
	var out []db.KindCount
	for kind, count := range byKind {
		out = append(out, db.KindCount{Kind: kind, Count: count})
	}
	slices.SortFunc(out, func(a, b db.KindCount) int { return b.Count - a.Count })
	return out, nil
}

func (f *fakeStore) AppendTurn(_ context.Context, owner models.Owner, role, content string) (*models.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := owner.Key()
	turn := models.Turn{
		ID:        surrealmodels.NewRecordID("turn", f.newID("t")),
		OwnerKind: owner.Kind,
		OwnerID:   owner.ID,
		Seq:       len(f.turns[key]) + 1,
		Role:      role,
		Content:   content,
		Created:   time.Now().UTC(),
	}
	f.turns[key] = append(f.turns[key], turn)
	return &turn, nil
}

func (f *fakeStore) RecentTurns(_ context.Context, owner models.Owner, k int) ([]models.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	turns := f.turns[owner.Key()]
	if k <= 0 || len(turns) == 0 {
		return []models.Turn{}, nil
	}
	if k > len(turns) {
		k = len(turns)
	}
	return slices.Clone(turns[len(turns)-k:]), nil
}

func (f *fakeStore) TurnRange(_ context.Context, owner models.Owner, start, end int) ([]models.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Turn
	for _, t := range f.turns[owner.Key()] {
		if t.Seq >= start && t.Seq <= end {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) MaxTurnSeq(_ context.Context, owner models.Owner) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns[owner.Key()]), nil
}

func (f *fakeStore) CreateSummary(_ context.Context, s *models.SummaryRecord) (*models.SummaryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := models.Owner{Kind: s.OwnerKind, ID: s.OwnerID}.Key()
	for _, existing := range f.summaries[key] {
		if existing.TurnStart == s.TurnStart {
			return nil, db.ErrAlreadyExists
		}
	}

	stored := *s
	stored.ID = surrealmodels.NewRecordID("summary", f.newID("s"))
	stored.Created = time.Now().UTC()
	f.summaries[key] = append(f.summaries[key], stored)
	return &stored, nil
}

func (f *fakeStore) LatestSummary(_ context.Context, owner models.Owner) (*models.SummaryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest *models.SummaryRecord
	for i := range f.summaries[owner.Key()] {
		s := &f.summaries[owner.Key()][i]
		if s.RetiredAt != nil {
			continue
		}
		if latest == nil || s.TurnStart > latest.TurnStart {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (f *fakeStore) ListSummaries(_ context.Context, owner models.Owner, includeRetired bool) ([]models.SummaryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.SummaryRecord
	for _, s := range f.summaries[owner.Key()] {
		if !includeRetired && s.RetiredAt != nil {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b models.SummaryRecord) int { return a.TurnStart - b.TurnStart })
	return out, nil
}

func (f *fakeStore) LastSummarizedSeq(_ context.Context, owner models.Owner) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	maxEnd := 0
	for _, s := range f.summaries[owner.Key()] {
		if s.RetiredAt == nil && s.TurnEnd > maxEnd {
			maxEnd = s.TurnEnd
		}
	}
	return maxEnd, nil
}

func (f *fakeStore) RetireSummary(_ context.Context, id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key := range f.summaries {
		for i := range f.summaries[key] {
			s := &f.summaries[key][i]
			if models.MustRecordIDString(s.ID) == id && s.RetiredAt == nil {
				at := now
				s.RetiredAt = &at
				return nil
			}
		}
	}
	return db.ErrNotFound
}

func (f *fakeStore) AcquireLease(_ context.Context, owner models.Owner, holder string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := owner.Key()
	now := time.Now()
	if existing, ok := f.leases[key]; ok && existing.expires.After(now) {
		return false, nil
	}
	f.leases[key] = fakeLease{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

func (f *fakeStore) ReleaseLease(_ context.Context, owner models.Owner, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := owner.Key()
	if existing, ok := f.leases[key]; ok && existing.holder == holder {
		delete(f.leases, key)
	}
	return nil
}
