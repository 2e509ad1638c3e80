package service

import (
	"errors"
	"math"
	"time"
)

// ErrEncodingMismatch marks vectors that were produced by different
// embedding model versions or dimensions. Such vectors are incomparable;
// search skips the affected candidate instead of failing the query.
var ErrEncodingMismatch = errors.New("embedding encoding mismatch")

const hoursPerDay = 24.0

// Relevance computes the time-decayed relevance of a record:
// importance * exp(-lambda * ageDays), clamped to [0, 1]. It is derived
// on read and never stored, so a record's relevance is always current
// without background rescoring writes.
func Relevance(importance, lambdaPerDay float64, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	ageDays := age.Hours() / hoursPerDay
	return clamp01(importance * math.Exp(-lambdaPerDay*ageDays))
}

// CosineSimilarity computes the cosine similarity of two vectors,
// normalized into [0, 1]. Vectors of different lengths are incomparable
// and return ErrEncodingMismatch.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrEncodingMismatch
	}
	if len(a) == 0 {
		return 0, ErrEncodingMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	// Negative similarity carries no signal for retrieval; clamp to 0 so
	// the composite score stays in [0, 1].
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clamp01(cos), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
