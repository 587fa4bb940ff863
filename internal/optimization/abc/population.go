package abc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/goldmine/internal/optimization"
)

// Population is the set of candidate solutions owned by a colony, with the
// per-slot bookkeeping used by the scout phase.
type Population struct {
	solutions []Solution
	// fitness[i] is the latest evaluation of solutions[i]
	fitness []float64
	// previous[i] is the fitness read for slot i on the prior iteration,
	// NaN when there is none
	previous   []float64
	stagnation []int
}

// NewPopulation creates size random solutions of n sources each.
func NewPopulation(rng optimization.RandomSource, size, n int) *Population {
	p := &Population{
		solutions:  make([]Solution, size),
		fitness:    make([]float64, size),
		previous:   make([]float64, size),
		stagnation: make([]int, size),
	}
	for i := range p.solutions {
		p.solutions[i] = RandomSolution(rng, n)
		p.previous[i] = math.NaN()
	}
	return p
}

// Size returns the number of slots.
func (p *Population) Size() int {
	return len(p.solutions)
}

// Evaluate recomputes the fitness of every slot.
func (p *Population) Evaluate(m *YieldModel) {
	for i, s := range p.solutions {
		p.fitness[i] = Evaluate(s, m)
	}
}

// Rank returns the slot indices ordered by fitness, best first.
// Slots with equal fitness keep their index order.
func (p *Population) Rank() []int {
	order := make([]int, len(p.fitness))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p.fitness[order[a]] > p.fitness[order[b]]
	})
	return order
}

// Best returns the slot with the highest fitness, the lowest index on ties.
func (p *Population) Best() int {
	return floats.MaxIdx(p.fitness)
}

// Snapshot copies the solution and fitness held by slot i.
func (p *Population) Snapshot(i int) *optimization.Solution {
	return &optimization.Solution{
		Parameters: p.solutions[i].Clone(),
		Value:      p.fitness[i],
	}
}

// Stats returns the population mean and standard deviation of the fitness.
func (p *Population) Stats() (mean, stddev float64) {
	if len(p.fitness) < 2 {
		return stat.Mean(p.fitness, nil), 0
	}
	return stat.PopMeanStdDev(p.fitness, nil)
}

// Scout updates the stagnation counters from the current fitness and replaces
// every slot whose counter reached threshold with a fresh random solution.
// It returns the replaced slots.
func (p *Population) Scout(rng optimization.RandomSource, threshold int) []int {
	var abandoned []int
	for i, f := range p.fitness {
		if f == p.previous[i] {
			p.stagnation[i]++
		} else {
			p.stagnation[i] = 0
		}
		p.previous[i] = f

		if p.stagnation[i] >= threshold {
			p.solutions[i] = RandomSolution(rng, len(p.solutions[i]))
			p.stagnation[i] = 0
			p.previous[i] = math.NaN()
			abandoned = append(abandoned, i)
		}
	}
	return abandoned
}

// Employ perturbs one randomly chosen source of every slot by a delta drawn
// from [-0.5, 0.5).
func (p *Population) Employ(rng optimization.RandomSource) {
	for _, s := range p.solutions {
		source := rng.Intn(len(s))
		s.Nudge(source, rng.Float64()-0.5)
	}
}
