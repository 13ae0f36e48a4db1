package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is a run file.
// Command line flags take precedence over the values in the file.
type Config struct {
	Conserve string  `yaml:"conserve"`
	Boundary string  `yaml:"boundary"`
	Form     string  `yaml:"form"`
	Cutoff   float64 `yaml:"cutoff"`
	DB       string  `yaml:"db"`

	Ising IsingConfig `yaml:"ising"`
}

// IsingConfig is the transverse field Ising chain of the ising command.
type IsingConfig struct {
	L int     `yaml:"l"`
	H float64 `yaml:"h"`
}

func defaultConfig() Config {
	return Config{
		Boundary: "finite",
		Form:     "B",
		Cutoff:   1e-12,
		Ising:    IsingConfig{L: 6, H: 1},
	}
}

// readConfig reads the run file at path.
// Fields missing from the file keep their defaults.
func readConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	if cfg.Ising.L < 2 {
		return Config{}, errors.Errorf("%s: ising.l %d", path, cfg.Ising.L)
	}
	return cfg, nil
}
