package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"slices"
	"strings"

	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/models"
)

const stubDim = 8

// stubEmbedder derives a deterministic unit vector from the text hash, so
// identical texts always land on the same vector and distinct texts are
// (almost surely) dissimilar. Explicit vectors can be pinned per text to
// control similarity in dedup tests.
type stubEmbedder struct {
	model   string
	pinned  map[string][]float32
	failOn  string
	failErr error
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{model: "stub-embed-v1", pinned: map[string][]float32{}}
}

var _ Embedder = (*stubEmbedder)(nil)

func (e *stubEmbedder) pin(text string, vec []float32) {
	e.pinned[text] = vec
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, e.failErr
	}
	if v, ok := e.pinned[text]; ok {
		return slices.Clone(v), nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, stubDim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>32)) / float32(math.MaxInt32)
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) Model() string  { return e.model }
func (e *stubEmbedder) Dimension() int { return stubDim }

// unitVector builds an axis-aligned vector for tests that need exact
// similarity control.
func unitVector(axis int) []float32 {
	v := make([]float32, stubDim)
	v[axis%stubDim] = 1
	return v
}

// stubGenerator returns canned extraction and summary responses.
type stubGenerator struct {
	extract    map[string]string // keyed by turn content
	extractErr error
	summary    string
	summaryErr error
}

var _ Generator = (*stubGenerator)(nil)

func (g *stubGenerator) ExtractMemories(_ context.Context, _, content string) (string, error) {
	if g.extractErr != nil {
		return "", g.extractErr
	}
	if resp, ok := g.extract[content]; ok {
		return resp, nil
	}
	return "NONE", nil
}

func (g *stubGenerator) SummarizeTurns(_ context.Context, turns []models.Turn) (string, error) {
	if g.summaryErr != nil {
		return "", g.summaryErr
	}
	if g.summary != "" {
		return g.summary, nil
	}
	return fmt.Sprintf(`SUMMARY: Covered turns %d through %d.
TOPICS: testing
ENTITIES: engine
DECISIONS: NONE`, turns[0].Seq, turns[len(turns)-1].Seq), nil
}

// wordCounter is a cheap deterministic token counter for budget tests.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func testPolicy() config.Policy {
	return config.DefaultPolicy()
}

func listAll() db.MemoryListOptions {
	return db.MemoryListOptions{}
}

func ownerFor(id string) models.Owner {
	return models.Owner{Kind: "agent", ID: id}
}
