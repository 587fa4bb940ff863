package commands

import (
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/copyleftdev/goldmine/internal/errors"
	"github.com/copyleftdev/goldmine/internal/optimization/abc"
)

func newYieldsCmd(opts *rootOptions) *cobra.Command {
	flags := &colonyFlags{}

	cmd := &cobra.Command{
		Use:   "yields",
		Short: "Print the yield vector a run would use",
		Long: `Print the yield per source. Random yields are reproducible only when a
seed is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(opts.format)
			if err != nil {
				return err
			}
			cc, err := flags.apply(cmd, opts.cfg.ColonyConfig())
			if err != nil {
				return err
			}

			var model *abc.YieldModel
			if len(cc.Yields) > 0 {
				model, err = abc.NewYieldModel(cc.Yields)
			} else {
				seed := cc.RandomSeed
				if seed == 0 {
					seed = time.Now().UnixNano()
				}
				model, err = abc.RandomYieldModel(rand.New(rand.NewSource(seed)), cc.Sources)
			}
			if err != nil {
				return apperrors.Wrap(err, "invalid yields")
			}

			return writeYields(cmd.OutOrStdout(), format, model.Yields())
		},
	}

	flags.register(cmd)

	return cmd
}
