package abc

import (
	"math"
	"testing"
)

// sequenceSource replays fixed draws, cycling when exhausted
type sequenceSource struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (s *sequenceSource) Float64() float64 {
	v := s.floats[s.fi%len(s.floats)]
	s.fi++
	return v
}

func (s *sequenceSource) Intn(n int) int {
	v := s.ints[s.ii%len(s.ints)] % n
	s.ii++
	return v
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// assertInBounds fails when any intensity of any solution leaves [0, 1]
func assertInBounds(t *testing.T, p *Population) {
	t.Helper()

	for i, s := range p.solutions {
		if !s.InBounds() {
			t.Fatalf("slot %d out of bounds: %v", i, s)
		}
	}
}
