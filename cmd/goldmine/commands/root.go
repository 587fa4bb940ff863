// Package commands implements the goldmine command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/goldmine/internal/config"
	"github.com/copyleftdev/goldmine/internal/logging"
)

// NewRootCmd builds the goldmine command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "goldmine",
		Short: "Allocate mining intensity with an artificial bee colony",
		Long: `goldmine distributes mining intensity across gold sources with an
Artificial Bee Colony optimizer and reports the allocation with the highest
total yield. Defaults come from ABC_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&opts.format, "format", "o", "text", "Output format (text, json, yaml)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newYieldsCmd(opts))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

type rootOptions struct {
	logLevel string
	format   string

	cfg    *config.Config
	logger *logging.Logger
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	if _, err := parseFormat(o.format); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	o.cfg = cfg

	level := cfg.Logging.Level
	if _, set := os.LookupEnv("LOG_LEVEL"); !set {
		// keep run chatter out of the terminal unless asked for
		level = "warn"
	}
	if o.logLevel != "" {
		level = o.logLevel
	}

	// results go to stdout, logs never do
	output := cfg.Logging.Output
	if output == "stdout" {
		output = "stderr"
	}
	logger, err := logging.NewLogger(&logging.Config{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return err
	}
	o.logger = logger.WithField("service", "goldmine-cli")
	return nil
}
