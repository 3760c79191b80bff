package experiment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-facing description of an experiment: the problem, the
// optimizer knobs, and how many runs to perform. Multiple files can be
// merged, later files overriding whatever keys they set.
type Config struct {
	Problem     string `yaml:"problem"`
	Dimensions  int    `yaml:"dimensions"`
	K           int    `yaml:"k"`
	StepSize    int    `yaml:"step_size"`
	ProblemSeed int64  `yaml:"problem_seed"`
	InstanceDir string `yaml:"instance_dir"`

	PopSize            int     `yaml:"pop_size"`
	Runs               int     `yaml:"runs"`
	MaximumEvaluations int     `yaml:"maximum_evaluations"`
	MaximumFitness     float64 `yaml:"maximum_fitness"`
	Unique             bool    `yaml:"unique"`
	Seed               int64   `yaml:"seed"`

	Metric            string `yaml:"metric"`
	Traversal         string `yaml:"traversal"`
	Acceptance        string `yaml:"acceptance"`
	ForcedImprovement bool   `yaml:"forced_improvement"`
	Variant           string `yaml:"variant"`
	Workers           int    `yaml:"workers"`
	LocalSearch       bool   `yaml:"local_search"`

	BisectionRuns         int `yaml:"bisection_runs"`
	BisectionFailureLimit int `yaml:"bisection_failure_limit"`

	Verbose bool `yaml:"verbose"`
}

// LoadConfig reads and merges the given YAML files in order. Keys set by a
// later file override earlier values; keys a file omits are left alone.
func LoadConfig(paths ...string) (Config, error) {
	if len(paths) == 0 {
		return Config{}, fmt.Errorf("at least one config file is required")
	}
	var cfg Config
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Problem == "" {
		return fmt.Errorf("config requires a problem")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("config requires dimensions > 0, got %d", c.Dimensions)
	}
	if c.PopSize < 2 {
		return fmt.Errorf("config requires pop_size >= 2, got %d", c.PopSize)
	}
	if c.Runs < 0 {
		return fmt.Errorf("config runs must not be negative, got %d", c.Runs)
	}
	return nil
}
