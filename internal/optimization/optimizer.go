package optimization

import (
	"context"
)

// Optimizer defines the interface for optimization algorithms
type Optimizer interface {
	// Optimize runs the optimization process to completion
	Optimize(ctx context.Context) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the per-iteration history
	GetHistory() []Evaluation
}

// RandomSource is the uniform random generator shared by the colony
// components. *math/rand.Rand satisfies it.
type RandomSource interface {
	// Float64 returns a value in [0, 1)
	Float64() float64
	// Intn returns a value in [0, n)
	Intn(n int) int
}

// ColonyConfig contains the run parameters of a bee colony
type ColonyConfig struct {
	// Number of resource sources (solution dimension)
	Sources int

	// Number of candidate solutions in the population
	PopulationSize int

	// Number of refinement iterations
	MaxIterations int

	// Consecutive unchanged readings after which a slot is abandoned
	AbandonmentThreshold int

	// Fixed yield coefficients. When empty the yields are drawn at random.
	Yields []float64

	// Random seed for reproducibility, 0 seeds from the clock
	RandomSeed int64
}

// DefaultColonyConfig returns the reference gold-mining parameters.
func DefaultColonyConfig() ColonyConfig {
	return ColonyConfig{
		Sources:              len(ReferenceYields),
		PopulationSize:       20,
		MaxIterations:        100,
		AbandonmentThreshold: 10,
		Yields:               append([]float64(nil), ReferenceYields...),
	}
}

// ReferenceYields are the gold yields of the reference mining site.
var ReferenceYields = []float64{
	11.038460038447706, 27.841727104299764, 48.56526934093153, 35.881140888430416,
	8.297921532346496, 85.31585022688503, 21.6228997068595, 2.308778611010165,
	54.909568588479765, 15.671227468859616, 20.445639493545098, 12.97782236345143,
	96.84637504676179, 3.5486026693377193, 84.69285190713865,
}

// Validate checks the configuration, returning an ErrInvalidConfig error
// describing the first problem found.
func (c ColonyConfig) Validate() error {
	switch {
	case c.Sources <= 0:
		return ConfigErrorf("source count must be positive, got %d", c.Sources)
	case c.PopulationSize <= 0:
		return ConfigErrorf("population size must be positive, got %d", c.PopulationSize)
	case c.MaxIterations < 0:
		return ConfigErrorf("max iterations must not be negative, got %d", c.MaxIterations)
	case c.AbandonmentThreshold <= 0:
		return ConfigErrorf("abandonment threshold must be positive, got %d", c.AbandonmentThreshold)
	case len(c.Yields) != 0 && len(c.Yields) != c.Sources:
		return ConfigErrorf("expected %d yields, got %d", c.Sources, len(c.Yields))
	}
	return nil
}

// Solution is a mining intensity per source together with its total yield
type Solution struct {
	Parameters []float64 `json:"parameters" yaml:"parameters"`
	Value      float64   `json:"value" yaml:"value"`
}

// Clone returns a deep copy of the solution.
func (s *Solution) Clone() *Solution {
	if s == nil {
		return nil
	}
	return &Solution{
		Parameters: append([]float64(nil), s.Parameters...),
		Value:      s.Value,
	}
}

// Evaluation summarises the population at one iteration
type Evaluation struct {
	Iteration int       `json:"iteration" yaml:"iteration"`
	Solution  *Solution `json:"best" yaml:"best"`
	Mean      float64   `json:"mean" yaml:"mean"`
	StdDev    float64   `json:"stddev" yaml:"stddev"`
	Abandoned int       `json:"abandoned" yaml:"abandoned"`
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution    `json:"best_solution" yaml:"best_solution"`
	Yields       []float64    `json:"yields" yaml:"yields"`
	History      []Evaluation `json:"history,omitempty" yaml:"history,omitempty"`
	Iterations   int          `json:"iterations" yaml:"iterations"`
}
