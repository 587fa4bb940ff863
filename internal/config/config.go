package config

import (
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/goldmine/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Colony struct {
		Sources              int       `env:"ABC_SOURCES" envDefault:"15"`
		PopulationSize       int       `env:"ABC_POPULATION_SIZE" envDefault:"20"`
		MaxIterations        int       `env:"ABC_MAX_ITERATIONS" envDefault:"100"`
		AbandonmentThreshold int       `env:"ABC_ABANDONMENT_THRESHOLD" envDefault:"10"`
		Seed                 int64     `env:"ABC_SEED" envDefault:"0"`
		Yields               []float64 `env:"ABC_YIELDS" envSeparator:","`
		RandomYields         bool      `env:"ABC_RANDOM_YIELDS" envDefault:"false"`

		// Upper bounds on what a single API request may ask for.
		MaxSources     int `env:"ABC_MAX_SOURCES" envDefault:"1000"`
		MaxPopulation  int `env:"ABC_MAX_POPULATION" envDefault:"10000"`
		IterationLimit int `env:"ABC_ITERATION_LIMIT" envDefault:"100000"`
	}
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	return cfg, nil
}

// ColonyConfig converts the colony settings into optimizer parameters.
// Without explicit yields the reference yields are used when the source
// count matches them; otherwise, or when RandomYields is set, the yields are
// drawn at random for each run.
func (c *Config) ColonyConfig() optimization.ColonyConfig {
	cc := optimization.ColonyConfig{
		Sources:              c.Colony.Sources,
		PopulationSize:       c.Colony.PopulationSize,
		MaxIterations:        c.Colony.MaxIterations,
		AbandonmentThreshold: c.Colony.AbandonmentThreshold,
		RandomSeed:           c.Colony.Seed,
	}

	switch {
	case c.Colony.RandomYields:
	case len(c.Colony.Yields) > 0:
		cc.Yields = append([]float64(nil), c.Colony.Yields...)
	case c.Colony.Sources == len(optimization.ReferenceYields):
		cc.Yields = append([]float64(nil), optimization.ReferenceYields...)
	}

	return cc
}
