package facematch

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different length are compared.
// It always indicates a programming or configuration error.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Metric selects how vectors are compared. It is fixed per deployment because
// the threshold direction depends on it.
type Metric string

const (
	// MetricCosine scores by cosine similarity in [-1, 1]; higher is better.
	MetricCosine Metric = "cosine"
	// MetricEuclidean scores by L2 distance in [0, inf); lower is better.
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric parses a metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricEuclidean:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown metric %q (want cosine or euclidean)", s)
	}
}

// Scorer compares two feature vectors with a single configured metric.
type Scorer struct {
	metric Metric
}

// NewScorer creates a scorer for the metric.
func NewScorer(metric Metric) Scorer {
	return Scorer{metric: metric}
}

// Metric returns the configured metric.
func (s Scorer) Metric() Metric {
	return s.metric
}

// Score compares a and b. It never truncates or pads.
func (s Scorer) Score(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if s.metric == MetricEuclidean {
		return EuclideanDistance(a, b), nil
	}
	return CosineSimilarity(a, b), nil
}

// Perfect returns the score of a vector compared with itself.
func (s Scorer) Perfect() float64 {
	if s.metric == MetricEuclidean {
		return 0
	}
	return 1
}

// Better reports whether score x ranks strictly above y.
func (s Scorer) Better(x, y float64) bool {
	if s.metric == MetricEuclidean {
		return x < y
	}
	return x > y
}

// Clears reports whether score passes the acceptance threshold.
func (s Scorer) Clears(score, threshold float64) bool {
	if s.metric == MetricEuclidean {
		return score <= threshold
	}
	return score >= threshold
}

// Resembles reports whether score carries any evidence of likeness. A cosine
// score of zero or below means the vectors share no direction. Every finite
// distance resembles.
func (s Scorer) Resembles(score float64) bool {
	if s.metric == MetricEuclidean {
		return true
	}
	return score > 0
}

// Gap returns how far other trails best. It is non-negative when best was
// selected by Better.
func (s Scorer) Gap(best, other float64) float64 {
	if s.metric == MetricEuclidean {
		return other - best
	}
	return best - other
}

// CosineSimilarity computes the cosine similarity of two equal-length vectors.
// Zero vectors have similarity 0 with everything.
func CosineSimilarity(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity
}

// EuclideanDistance computes the L2 distance of two equal-length vectors.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
