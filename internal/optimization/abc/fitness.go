package abc

import "gonum.org/v1/gonum/floats"

// Evaluate returns the total yield of s under m: the sum of intensity times
// yield over all sources. s must have m.Len() entries.
func Evaluate(s Solution, m *YieldModel) float64 {
	return floats.Dot(s, m.yields)
}
