package abc

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/goldmine/internal/optimization"
)

// MaxRandomYield is the exclusive upper bound of randomly drawn yields.
const MaxRandomYield = 100.0

// YieldModel holds the per-source yield coefficients of a run.
// It is immutable once constructed.
type YieldModel struct {
	yields []float64
}

// NewYieldModel creates a model from fixed yield coefficients.
// The slice is copied.
func NewYieldModel(yields []float64) (*YieldModel, error) {
	if len(yields) == 0 {
		return nil, optimization.ConfigErrorf("at least one yield is required").
			WithComponent("abc").WithOperation("new_yield_model")
	}
	if floats.HasNaN(yields) || math.IsInf(floats.Max(yields), 1) {
		return nil, optimization.ConfigErrorf("yields must be finite").
			WithComponent("abc").WithOperation("new_yield_model")
	}
	if lowest := floats.Min(yields); lowest < 0 {
		return nil, optimization.ConfigErrorf("yields must be non-negative, got %v", lowest).
			WithComponent("abc").WithOperation("new_yield_model")
	}
	// a full allocation must have a finite total yield
	if math.IsInf(floats.Sum(yields), 0) {
		return nil, optimization.ConfigErrorf("total yield overflows").
			WithComponent("abc").WithOperation("new_yield_model")
	}
	return &YieldModel{yields: append([]float64(nil), yields...)}, nil
}

// RandomYieldModel draws n yields uniformly from [0, MaxRandomYield).
func RandomYieldModel(rng optimization.RandomSource, n int) (*YieldModel, error) {
	if n <= 0 {
		return nil, optimization.ConfigErrorf("source count must be positive, got %d", n).
			WithComponent("abc").WithOperation("random_yield_model")
	}
	yields := make([]float64, n)
	for i := range yields {
		yields[i] = rng.Float64() * MaxRandomYield
	}
	return &YieldModel{yields: yields}, nil
}

// Len returns the number of sources.
func (m *YieldModel) Len() int {
	return len(m.yields)
}

// Yields returns a copy of the coefficients.
func (m *YieldModel) Yields() []float64 {
	return append([]float64(nil), m.yields...)
}
