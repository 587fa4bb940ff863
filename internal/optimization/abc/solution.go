package abc

import (
	"math"

	"github.com/copyleftdev/goldmine/internal/optimization"
)

// Solution is the mining intensity allocated to each source, every entry in [0, 1].
type Solution []float64

// RandomSolution draws n intensities uniformly from [0, 1).
// Each call returns a freshly allocated slice.
func RandomSolution(rng optimization.RandomSource, n int) Solution {
	s := make(Solution, n)
	for i := range s {
		s[i] = rng.Float64()
	}
	return s
}

// Clone returns an independent copy.
func (s Solution) Clone() Solution {
	return append(Solution(nil), s...)
}

// Nudge adds delta to the intensity of source i and clamps the result into [0, 1].
func (s Solution) Nudge(i int, delta float64) {
	s[i] = clamp(s[i]+delta, 0, 1)
}

// InBounds reports whether every intensity lies in [0, 1].
func (s Solution) InBounds() bool {
	for _, v := range s {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
