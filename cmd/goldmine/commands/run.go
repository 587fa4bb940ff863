package commands

import (
	"github.com/spf13/cobra"

	apperrors "github.com/copyleftdev/goldmine/internal/errors"
	"github.com/copyleftdev/goldmine/internal/logging"
	"github.com/copyleftdev/goldmine/internal/optimization"
	"github.com/copyleftdev/goldmine/internal/optimization/abc"
)

type colonyFlags struct {
	sources      int
	population   int
	iterations   int
	threshold    int
	seed         int64
	yields       []float64
	randomYields bool
}

func (f *colonyFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.sources, "sources", 0, "Number of gold sources")
	cmd.Flags().IntVar(&f.population, "population", 0, "Population size")
	cmd.Flags().IntVar(&f.iterations, "iterations", 0, "Maximum iterations")
	cmd.Flags().IntVar(&f.threshold, "threshold", 0, "Abandonment threshold")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Random seed (0 seeds from the clock)")
	cmd.Flags().Float64SliceVar(&f.yields, "yields", nil, "Comma separated yield per source")
	cmd.Flags().BoolVar(&f.randomYields, "random-yields", false, "Draw yields uniformly from [0, 100)")
}

// apply overlays the flags the user set on cc.
func (f *colonyFlags) apply(cmd *cobra.Command, cc optimization.ColonyConfig) (optimization.ColonyConfig, error) {
	flags := cmd.Flags()
	if f.randomYields && flags.Changed("yields") {
		return cc, apperrors.New("--yields and --random-yields are mutually exclusive")
	}
	if flags.Changed("sources") && f.sources != cc.Sources {
		cc.Sources = f.sources
		cc.Yields = nil
	}
	if flags.Changed("population") {
		cc.PopulationSize = f.population
	}
	if flags.Changed("iterations") {
		cc.MaxIterations = f.iterations
	}
	if flags.Changed("threshold") {
		cc.AbandonmentThreshold = f.threshold
	}
	if flags.Changed("seed") {
		cc.RandomSeed = f.seed
	}
	if flags.Changed("yields") {
		cc.Yields = append([]float64(nil), f.yields...)
		if !flags.Changed("sources") {
			cc.Sources = len(f.yields)
		}
	}
	if f.randomYields {
		cc.Yields = nil
	}
	return cc, nil
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	flags := &colonyFlags{}
	var history bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the colony and print the best allocation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(opts.format)
			if err != nil {
				return err
			}
			cc, err := flags.apply(cmd, opts.cfg.ColonyConfig())
			if err != nil {
				return err
			}

			colony, err := abc.NewColony(cc, abc.WithLogger(logging.NewZapLogger(opts.logger)))
			if err != nil {
				return apperrors.Wrap(err, "invalid colony configuration")
			}

			ctx := (&logging.CtxLogger{Logger: opts.logger}).WithContext(cmd.Context())
			result, err := colony.Optimize(ctx)
			if err != nil {
				return apperrors.Wrap(err, "optimization failed")
			}

			return writeResult(cmd.OutOrStdout(), format, result, history)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&history, "history", false, "Include per-iteration history")

	return cmd
}
