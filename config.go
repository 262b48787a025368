package ckms

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes an Estimator in a form that can be read from YAML:
//
//	strategy: local
//	buffer_size: 32
//	targets:
//	  - {quantile: 0.5, error: 0.01}
//	  - {quantile: 0.99, error: 0.001}
type Config struct {
	// Strategy is one of baseline, primitive, queue or local.
	Strategy Strategy `yaml:"strategy"`

	// BufferSize is the staging capacity. Zero picks the strategy default.
	BufferSize int `yaml:"buffer_size"`

	// QueueThreshold is the merge threshold of the queue strategy. Zero picks
	// the default.
	QueueThreshold int `yaml:"queue_threshold"`

	// FreeWorkers bounds the idle worker list of the local strategy.
	FreeWorkers int `yaml:"free_workers"`

	// Targets are the tracked quantiles and their error budgets.
	Targets []TargetConfig `yaml:"targets"`
}

// TargetConfig ...
type TargetConfig struct {
	Quantile float64 `yaml:"quantile"`
	Error    float64 `yaml:"error"`
}

// DefaultConfig returns a primitive strategy estimator tracking
// DefaultTargets.
func DefaultConfig() Config {
	cfg := Config{Strategy: Primitive}
	for _, t := range DefaultTargets() {
		cfg.Targets = append(cfg.Targets, TargetConfig{Quantile: t.Quantile, Error: t.Error})
	}
	return cfg
}

// ParseConfig decodes YAML on top of DefaultConfig. A document that lists
// targets replaces the default targets.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	cfg.Targets = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = DefaultConfig().Targets
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	return ParseConfig(data)
}

// Validate ...
func (c Config) Validate() error {
	if _, ok := strategyNames[c.Strategy]; !ok {
		return errors.Wrapf(ErrUnknownStrategy, "%d", int(c.Strategy))
	}
	if c.BufferSize < 0 {
		return errors.Wrapf(ErrInvalidBufferSize, "buffer_size %d", c.BufferSize)
	}
	if c.QueueThreshold < 0 {
		return errors.Wrapf(ErrInvalidBufferSize, "queue_threshold %d", c.QueueThreshold)
	}
	_, err := c.targets()
	return err
}

func (c Config) targets() ([]Target, error) {
	if len(c.Targets) == 0 {
		return nil, ErrNoTargets
	}
	out := make([]Target, 0, len(c.Targets))
	for i, tc := range c.Targets {
		t, err := NewTarget(tc.Quantile, tc.Error)
		if err != nil {
			return nil, errors.Wrapf(err, "target %d", i)
		}
		out = append(out, t)
	}
	return out, nil
}

// NewFromConfig builds an Estimator from cfg. Options passed in are applied
// after the ones derived from cfg.
func NewFromConfig(cfg Config, opts ...Option) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	targets, err := cfg.targets()
	if err != nil {
		return nil, err
	}
	all := []Option{
		WithBufferSize(cfg.BufferSize),
		WithQueueThreshold(cfg.QueueThreshold),
		WithFreeWorkers(cfg.FreeWorkers),
	}
	return New(cfg.Strategy, targets, append(all, opts...)...)
}
