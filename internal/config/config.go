package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Dataset formats understood by the loader.
const (
	FormatCIFAR10    = "cifar10"
	FormatWebDataset = "webdataset"
)

// Phase is one step of the learning-rate schedule.
type Phase struct {
	Epochs int     `yaml:"epochs"`
	LR     float64 `yaml:"lr"`
}

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir       string  `yaml:"data_dir"`
	Format        string  `yaml:"format"`
	OutDir        string  `yaml:"out_dir"`
	ValSize       int     `yaml:"val_size"`
	BatchSize     int     `yaml:"batch_size"`
	EvalBatchSize int     `yaml:"eval_batch_size"`
	TestBatchSize int     `yaml:"test_batch_size"`
	NumWorkers    int     `yaml:"num_workers"`
	HiddenSize    int     `yaml:"hidden_size"`
	Seed          int64   `yaml:"seed"`
	LogEvery      int     `yaml:"log_every"`
	Schedule      []Phase `yaml:"schedule"`

	Checkpoint  string `yaml:"checkpoint"`
	HyperParams string `yaml:"hyper_params"`
	Metrics     string `yaml:"metrics"`
	Plot        string `yaml:"plot"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir    string
	Format     string
	OutDir     string
	BatchSize  int
	NumWorkers int
	Seed       int64
	LogEvery   int
}

// Defaults returns the configuration of the reference experiment.
func Defaults() *Config {
	return &Config{
		DataDir:       "data",
		Format:        FormatCIFAR10,
		OutDir:        ".",
		ValSize:       10000,
		BatchSize:     64,
		EvalBatchSize: 128,
		TestBatchSize: 256,
		NumWorkers:    4,
		HiddenSize:    128,
		Seed:          42,
		LogEvery:      200,
		Schedule: []Phase{
			{Epochs: 5, LR: 0.5},
			{Epochs: 25, LR: 0.1},
			{Epochs: 15, LR: 0.05},
		},
		Checkpoint:  "cifar10-nn-weights.ckpt",
		HyperParams: "hyper_params.json",
		Metrics:     "metrics.json",
		Plot:        "history.svg",
	}
}

// Load reads a YAML file on top of Defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Format != "" {
		c.Format = o.Format
	}
	if o.OutDir != "" {
		c.OutDir = o.OutDir
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// TotalEpochs returns the number of epochs across the given phases.
func TotalEpochs(schedule []Phase) int {
	total := 0
	for _, p := range schedule {
		total += p.Epochs
	}
	return total
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.Format != FormatCIFAR10 && c.Format != FormatWebDataset {
		return fmt.Errorf("format must be %q or %q (got %q)", FormatCIFAR10, FormatWebDataset, c.Format)
	}
	if c.ValSize <= 0 {
		return fmt.Errorf("val_size must be > 0 (got %d)", c.ValSize)
	}
	for name, v := range map[string]int{
		"batch_size":      c.BatchSize,
		"eval_batch_size": c.EvalBatchSize,
		"test_batch_size": c.TestBatchSize,
		"num_workers":     c.NumWorkers,
		"hidden_size":     c.HiddenSize,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be > 0 (got %d)", name, v)
		}
	}
	for i, p := range c.Schedule {
		if p.Epochs < 0 {
			return fmt.Errorf("schedule[%d]: epochs must be >= 0 (got %d)", i, p.Epochs)
		}
		if p.LR <= 0 {
			return fmt.Errorf("schedule[%d]: lr must be > 0 (got %g)", i, p.LR)
		}
	}
	if c.Checkpoint == "" || c.HyperParams == "" || c.Metrics == "" {
		return errors.New("checkpoint, hyper_params and metrics paths must be set")
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 200
	}
	return nil
}
