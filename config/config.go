// Package config holds the settings of a training run, read from YAML.
package config

import (
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a training run.
type Config struct {
	BatchSize int     `yaml:"batch_size"`
	Epochs    int     `yaml:"epochs"`
	LR        float64 `yaml:"lr"`

	// LRDecay multiplies the learning rate every LRDecayEvery optimizer steps. An LRDecayEvery of
	// 0 keeps the learning rate constant.
	LRDecay      float64 `yaml:"lr_decay"`
	LRDecayEvery int     `yaml:"lr_decay_every"`

	Beta1       float64 `yaml:"beta1"`
	Beta2       float64 `yaml:"beta2"`
	Seed        int64   `yaml:"seed"`
	Margin      float64 `yaml:"margin"`
	Reg         float64 `yaml:"reg"`
	Loss        string  `yaml:"loss"`
	Optimizer   string  `yaml:"optimizer"`
	Penalty     string  `yaml:"penalty"`
	LogInterval int     `yaml:"log_interval"`

	// Resume is the path of a checkpoint to start from. Empty starts a new run.
	Resume string `yaml:"resume"`

	// Name is the name of the run, used for its directory under RunsDir.
	Name    string `yaml:"name"`
	RunsDir string `yaml:"runs_dir"`

	Data    string `yaml:"data"`
	DataDir string `yaml:"data_dir"`
	ImSize  int    `yaml:"im_size"`

	Network      string `yaml:"network"`
	EmbeddingDim int    `yaml:"embedding_dim"`

	// TrainClasses and ValClasses select class directories of the dataset by position.
	TrainClasses []int `yaml:"train_classes"`
	ValClasses   []int `yaml:"val_classes"`

	TripletsPerClass int     `yaml:"triplets_per_class"`
	HardFrac         float64 `yaml:"hard_frac"`
	TiePolicy        string  `yaml:"tie_policy"`

	// DedupeHard keeps at most one record per triplet in the sampler.
	DedupeHard bool `yaml:"dedupe_hard"`

	TripletFreq int `yaml:"triplet_freq"`
	ValFreq     int `yaml:"val_freq"`

	Workers  int `yaml:"workers"`
	Prefetch int `yaml:"prefetch"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BatchSize: 64,
		Epochs:    50,
		LR:        1e-4,

		LRDecay:      1,
		LRDecayEvery: 0,

		Beta1:       0.9,
		Beta2:       0.999,
		Seed:        1,
		Margin:      0.2,
		Reg:         1e-3,
		Loss:        "margin-ranking",
		Optimizer:   "adam",
		Penalty:     "norm",
		LogInterval: 2,

		Name:    "TripletNet",
		RunsDir: "runs",

		Data:    "cub-2011",
		DataDir: "datasets/cub-2011",
		ImSize:  64,

		Network:      "simple",
		EmbeddingDim: 64,

		TrainClasses: seq(0, 8),
		ValClasses:   seq(8, 12),

		TripletsPerClass: 16,
		HardFrac:         0.5,
		TiePolicy:        "keep-earliest",
		TripletFreq:      10,
		ValFreq:          2,

		Workers:  1,
		Prefetch: 2,
	}
}

// seq returns [start, end)
func seq(start, end int) []int {
	s := make([]int, end-start)
	for i := range s {
		s[i] = start + i
	}
	return s
}

// Load loads configuration from a file. Fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read config\n")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(tn.ErrConfiguration, "failed to parse config %s: %v", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the default if path is empty or does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	return Load(path)
}

// Save writes the configuration to a file, creating its directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrapf(err, "Failed to create config directory\n")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "Failed to marshal config\n")
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrapf(err, "Failed to write config file\n")
	}

	return nil
}

// Validate checks that the configuration describes a runnable training. Every error it returns
// satisfies tripletnet.IsConfiguration.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"batch_size", c.BatchSize},
		{"epochs", c.Epochs},
		{"log_interval", c.LogInterval},
		{"im_size", c.ImSize},
		{"embedding_dim", c.EmbeddingDim},
		{"triplets_per_class", c.TripletsPerClass},
		{"triplet_freq", c.TripletFreq},
		{"val_freq", c.ValFreq},
		{"workers", c.Workers},
		{"prefetch", c.Prefetch},
	}

	for _, p := range positive {
		if p.v <= 0 {
			return errors.Wrapf(tn.ErrConfiguration, "%s must be > 0 (%d)", p.name, p.v)
		}
	}

	switch {
	case !(c.LR > 0) || math.IsInf(c.LR, 0):
		return errors.Wrapf(tn.ErrConfiguration, "lr must be a positive number (%v)", c.LR)
	case !(c.LRDecay > 0 && c.LRDecay <= 1):
		return errors.Wrapf(tn.ErrConfiguration, "lr_decay must be in (0, 1] (%v)", c.LRDecay)
	case c.LRDecayEvery < 0:
		return errors.Wrapf(tn.ErrConfiguration, "lr_decay_every must be >= 0 (%d)", c.LRDecayEvery)
	case !(c.Beta1 >= 0 && c.Beta1 < 1) || !(c.Beta2 >= 0 && c.Beta2 < 1):
		return errors.Wrapf(tn.ErrConfiguration, "beta1 and beta2 must be in [0, 1) (%v, %v)", c.Beta1, c.Beta2)
	case !(c.Margin >= 0) || math.IsInf(c.Margin, 0):
		return errors.Wrapf(tn.ErrConfiguration, "margin must be a non-negative number (%v)", c.Margin)
	case !(c.Reg >= 0) || math.IsInf(c.Reg, 0):
		return errors.Wrapf(tn.ErrConfiguration, "reg must be a non-negative number (%v)", c.Reg)
	case !(c.HardFrac >= 0 && c.HardFrac <= 1):
		return errors.Wrapf(tn.ErrConfiguration, "hard_frac must be in [0, 1] (%v)", c.HardFrac)
	case c.Name == "":
		return errors.Wrap(tn.ErrConfiguration, "name is empty")
	case c.DataDir == "":
		return errors.Wrap(tn.ErrConfiguration, "data_dir is empty")
	case c.Network == "":
		return errors.Wrap(tn.ErrConfiguration, "network is empty")
	case c.Loss == "":
		return errors.Wrap(tn.ErrConfiguration, "loss is empty")
	case c.TiePolicy != "keep-earliest" && c.TiePolicy != "keep-latest":
		return errors.Wrapf(tn.ErrConfiguration, "tie_policy must be keep-earliest or keep-latest (%q)", c.TiePolicy)
	}

	if err := checkClasses("train_classes", c.TrainClasses); err != nil {
		return err
	} else if err := checkClasses("val_classes", c.ValClasses); err != nil {
		return err
	}

	return nil
}

// checkClasses requires at least two distinct, non-negative classes
func checkClasses(name string, cs []int) error {
	if len(cs) < 2 {
		return errors.Wrapf(tn.ErrConfiguration, "%s needs at least 2 classes (%v)", name, cs)
	}

	seen := make(map[int]bool, len(cs))
	for _, c := range cs {
		if c < 0 {
			return errors.Wrapf(tn.ErrConfiguration, "%s has a negative class (%d)", name, c)
		} else if seen[c] {
			return errors.Wrapf(tn.ErrConfiguration, "%s lists class %d twice", name, c)
		}
		seen[c] = true
	}

	return nil
}
