package service

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevanceFreshRecord(t *testing.T) {
	// Zero age: relevance equals importance.
	assert.InDelta(t, 0.8, Relevance(0.8, 0.02, 0), 1e-9)
}

func TestRelevanceHalfLife(t *testing.T) {
	// lambda = ln2 gives a one-day half-life.
	got := Relevance(1.0, math.Ln2, 24*time.Hour)
	assert.InDelta(t, 0.5, got, 1e-9)

	got = Relevance(1.0, math.Ln2, 48*time.Hour)
	assert.InDelta(t, 0.25, got, 1e-9)
}

func TestRelevanceMonotoneInAge(t *testing.T) {
	prev := math.Inf(1)
	for days := 0; days <= 365; days += 30 {
		rel := Relevance(0.9, 0.01, time.Duration(days)*24*time.Hour)
		require.LessOrEqual(t, rel, prev, "relevance must not grow with age (day %d)", days)
		require.GreaterOrEqual(t, rel, 0.0)
		require.LessOrEqual(t, rel, 1.0)
		prev = rel
	}
}

func TestRelevanceNegativeAgeClamped(t *testing.T) {
	// Clock skew must not inflate relevance above importance.
	assert.InDelta(t, 0.5, Relevance(0.5, 0.02, -time.Hour), 1e-9)
}

func TestRelevanceZeroDecay(t *testing.T) {
	// lambda 0 keeps relevance pinned at importance forever.
	assert.InDelta(t, 0.7, Relevance(0.7, 0, 365*24*time.Hour), 1e-9)
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := unitVector(2)
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim, err := CosineSimilarity(unitVector(0), unitVector(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-6)
}

func TestCosineSimilarityNegativeClamped(t *testing.T) {
	a := unitVector(0)
	b := make([]float32, stubDim)
	b[0] = -1
	sim, err := CosineSimilarity(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity(make([]float32, 4), make([]float32, 8))
	require.True(t, errors.Is(err, ErrEncodingMismatch))

	_, err = CosineSimilarity(nil, nil)
	require.True(t, errors.Is(err, ErrEncodingMismatch))
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity(make([]float32, stubDim), unitVector(0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}
