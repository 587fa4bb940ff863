// Package abc implements the Artificial Bee Colony optimizer used to allocate
// mining intensity across resource sources.
package abc

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/goldmine/internal/logging"
	"github.com/copyleftdev/goldmine/internal/optimization"
)

// State is the lifecycle stage of a colony.
type State int

const (
	Uninitialized State = iota
	Initialized
	Iterating
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Iterating:
		return "iterating"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Colony runs the bee colony over a single population. A colony is not safe
// for concurrent use and runs exactly once.
type Colony struct {
	config optimization.ColonyConfig
	model  *YieldModel
	rng    optimization.RandomSource
	logger *zap.Logger

	state     State
	pop       *Population
	iteration int

	// best solution recorded so far, never replaced by a worse one
	best    *optimization.Solution
	history []optimization.Evaluation
	result  *optimization.OptimizationResult
}

// Option customises a Colony.
type Option func(*Colony)

// WithRandomSource sets the random source used for yields, initialization,
// abandonment and perturbation.
func WithRandomSource(rng optimization.RandomSource) Option {
	return func(c *Colony) {
		c.rng = rng
	}
}

// WithYieldModel sets the yield model instead of building one from the config.
func WithYieldModel(m *YieldModel) Option {
	return func(c *Colony) {
		c.model = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Colony) {
		c.logger = logger
	}
}

// NewColony validates config and builds an uninitialized colony.
func NewColony(config optimization.ColonyConfig, opts ...Option) (*Colony, error) {
	if err := config.Validate(); err != nil {
		if e, ok := optimization.IsOptimizationError(err); ok {
			return nil, e.WithComponent("abc").WithOperation("new_colony")
		}
		return nil, err
	}

	c := &Colony{
		config:  config,
		history: make([]optimization.Evaluation, 0, config.MaxIterations),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.rng == nil {
		seed := config.RandomSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		c.rng = rand.New(rand.NewSource(seed))
	}

	var err error
	switch {
	case c.model != nil:
		if c.model.Len() != config.Sources {
			return nil, optimization.ConfigErrorf("yield model has %d sources, expected %d", c.model.Len(), config.Sources).
				WithComponent("abc").WithOperation("new_colony")
		}
	case len(config.Yields) > 0:
		c.model, err = NewYieldModel(config.Yields)
	default:
		c.model, err = RandomYieldModel(c.rng, config.Sources)
	}
	if err != nil {
		return nil, err
	}

	return c, nil
}

// State returns the lifecycle stage.
func (c *Colony) State() State {
	return c.state
}

// YieldModel returns the yields the colony optimizes against.
func (c *Colony) YieldModel() *YieldModel {
	return c.model
}

// Initialize fills the population with random solutions.
func (c *Colony) Initialize() error {
	if c.state != Uninitialized {
		return c.stateError("initialize")
	}
	c.pop = NewPopulation(c.rng, c.config.PopulationSize, c.config.Sources)
	c.state = Initialized
	return nil
}

// Step runs one iteration: evaluate, rank, record the best, abandon stagnant
// slots, then perturb every slot.
func (c *Colony) Step() error {
	if (c.state != Initialized && c.state != Iterating) || c.iteration >= c.config.MaxIterations {
		return c.stateError("step")
	}
	c.state = Iterating

	c.pop.Evaluate(c.model)
	ranking := c.pop.Rank()
	c.record(ranking[0])
	mean, stddev := c.pop.Stats()

	abandoned := c.pop.Scout(c.rng, c.config.AbandonmentThreshold)
	c.pop.Employ(c.rng)

	c.history = append(c.history, optimization.Evaluation{
		Iteration: c.iteration,
		Solution:  c.best.Clone(),
		Mean:      mean,
		StdDev:    stddev,
		Abandoned: len(abandoned),
	})
	if c.logger != nil {
		c.logger.Debug("colony iteration",
			zap.Int("iteration", c.iteration),
			zap.Float64("best_yield", c.best.Value),
			zap.Float64("mean_yield", mean),
			zap.Ints("abandoned", abandoned),
		)
	}

	c.iteration++
	return nil
}

// Terminate re-evaluates the population, selects the best candidate and
// stops the colony.
func (c *Colony) Terminate() (*optimization.OptimizationResult, error) {
	if c.state != Initialized && c.state != Iterating {
		return nil, c.stateError("terminate")
	}

	c.pop.Evaluate(c.model)
	c.record(c.pop.Best())
	c.state = Terminated

	c.result = &optimization.OptimizationResult{
		BestSolution: c.best.Clone(),
		Yields:       c.model.Yields(),
		History:      c.history,
		Iterations:   c.iteration,
	}
	return c.result, nil
}

// Optimize runs the colony from initialization to termination. When no logger
// was configured, the one carried by ctx is used.
func (c *Colony) Optimize(ctx context.Context) (*optimization.OptimizationResult, error) {
	if c.logger == nil {
		c.logger = logging.NewZapLogger(logging.FromContext(ctx).Logger)
	}

	if c.state == Uninitialized {
		if err := c.Initialize(); err != nil {
			return nil, err
		}
	}
	c.logger.Info("colony started",
		zap.Int("sources", c.config.Sources),
		zap.Int("population_size", c.config.PopulationSize),
		zap.Int("max_iterations", c.config.MaxIterations),
		zap.Int("abandonment_threshold", c.config.AbandonmentThreshold),
	)

	for c.iteration < c.config.MaxIterations {
		if err := c.Step(); err != nil {
			return nil, err
		}
	}

	result, err := c.Terminate()
	if err != nil {
		return nil, err
	}
	c.logger.Info("colony finished",
		zap.Int("iterations", result.Iterations),
		zap.Float64("best_yield", result.BestSolution.Value),
	)
	return result, nil
}

// GetBestSolution returns the best solution recorded so far, nil before the
// first evaluation.
func (c *Colony) GetBestSolution() *optimization.Solution {
	return c.best.Clone()
}

// GetHistory returns the per-iteration history.
func (c *Colony) GetHistory() []optimization.Evaluation {
	return c.history
}

// record keeps slot i as the best solution when it beats the current one.
func (c *Colony) record(i int) {
	if c.best == nil || c.pop.fitness[i] > c.best.Value {
		c.best = c.pop.Snapshot(i)
	}
}

func (c *Colony) stateError(op string) error {
	return optimization.NewErrorf("invalid transition from state %s", c.state).
		WithComponent("abc").WithOperation(op)
}

var _ optimization.Optimizer = (*Colony)(nil)
