package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Metric is the distance function used for matching. A deployment picks one.
type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricCosine    Metric = "cosine"
)

// ParseMetric validates a metric name. Empty selects euclidean.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case "", MetricEuclidean:
		return MetricEuclidean, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown match metric: %s (supported: %s, %s)", name, MetricEuclidean, MetricCosine)
	}
}

// Distance compares two embeddings. Embeddings from different models, or of
// different lengths, are rejected with ErrModelMismatch.
func (m Metric) Distance(a, b Embedding) (float64, error) {
	if a.Model != b.Model {
		return math.Inf(1), fmt.Errorf("%w: %s vs %s", ErrModelMismatch, a.Model, b.Model)
	}
	if len(a.Values) != len(b.Values) || len(a.Values) == 0 {
		return math.Inf(1), fmt.Errorf("%w: length %d vs %d", ErrModelMismatch, len(a.Values), len(b.Values))
	}

	switch m {
	case MetricCosine:
		return cosineDistance(a.Values, b.Values), nil
	default:
		return floats.Distance(a.Values, b.Values, 2), nil
	}
}

// Finite reports whether every value is a real number.
func (e Embedding) Finite() bool {
	if floats.HasNaN(e.Values) {
		return false
	}
	for _, v := range e.Values {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func cosineDistance(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	sim := floats.Dot(a, b) / (na * nb)
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}
