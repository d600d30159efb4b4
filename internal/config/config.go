// Package config loads born-optim settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Environment variables that override file values.
const (
	EnvLogLevel   = "BORN_OPTIM_LOG_LEVEL"
	EnvCheckpoint = "BORN_OPTIM_CHECKPOINT"
)

// Config holds all born-optim configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Devices  DevicesConfig  `yaml:"devices"`
	Training TrainingConfig `yaml:"training"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DevicesConfig lists the accelerators to open.
type DevicesConfig struct {
	WebGPU []int `yaml:"webgpu"` // Accelerator ordinals, one device each
}

// TrainingConfig configures the rehearsal loop.
type TrainingConfig struct {
	Params       int     `yaml:"params"`        // Number of parameter tensors
	ParamSize    int     `yaml:"param_size"`    // Elements per parameter tensor
	Steps        int     `yaml:"steps"`         // Update steps to run
	Shards       int     `yaml:"shards"`        // Data-parallel gradient workers
	LearningRate float64 `yaml:"learning_rate"` // Step size of the rehearsal rule
	Momentum     float64 `yaml:"momentum"`      // Velocity decay of the rehearsal rule
	MaxGradNorm  float64 `yaml:"max_grad_norm"` // Global clipping threshold
	WeightDecay  float64 `yaml:"weight_decay"`  // L2 coefficient added to gradients
	Seed         int64   `yaml:"seed"`          // Synthetic data seed
	Checkpoint   string  `yaml:"checkpoint"`    // Output path; empty disables writing
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Training: TrainingConfig{
			Params:       4,
			ParamSize:    1024,
			Steps:        10,
			Shards:       4,
			LearningRate: 0.01,
			Momentum:     0.9,
			MaxGradNorm:  1.0,
			WeightDecay:  5e-4,
			Seed:         1,
			Checkpoint:   "rehearsal.bopt",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
	if path := os.Getenv(EnvCheckpoint); path != "" {
		c.Training.Checkpoint = path
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("%w: logging.format %q (valid: json, console)", ErrInvalidConfig, c.Logging.Format)
	}

	seen := make(map[int]bool, len(c.Devices.WebGPU))
	for _, idx := range c.Devices.WebGPU {
		if idx < 0 {
			return fmt.Errorf("%w: devices.webgpu ordinal %d is negative", ErrInvalidConfig, idx)
		}
		if seen[idx] {
			return fmt.Errorf("%w: devices.webgpu ordinal %d listed twice", ErrInvalidConfig, idx)
		}
		seen[idx] = true
	}

	t := c.Training
	switch {
	case t.Params < 1:
		return fmt.Errorf("%w: training.params must be at least 1, got %d", ErrInvalidConfig, t.Params)
	case t.ParamSize < 1:
		return fmt.Errorf("%w: training.param_size must be at least 1, got %d", ErrInvalidConfig, t.ParamSize)
	case t.Steps < 1:
		return fmt.Errorf("%w: training.steps must be at least 1, got %d", ErrInvalidConfig, t.Steps)
	case t.Shards < 1:
		return fmt.Errorf("%w: training.shards must be at least 1, got %d", ErrInvalidConfig, t.Shards)
	case !(t.MaxGradNorm > 0):
		return fmt.Errorf("%w: training.max_grad_norm must be positive, got %v", ErrInvalidConfig, t.MaxGradNorm)
	case t.WeightDecay < 0:
		return fmt.Errorf("%w: training.weight_decay must be non-negative, got %v", ErrInvalidConfig, t.WeightDecay)
	case t.LearningRate <= 0:
		return fmt.Errorf("%w: training.learning_rate must be positive, got %v", ErrInvalidConfig, t.LearningRate)
	case t.Momentum < 0 || t.Momentum >= 1:
		return fmt.Errorf("%w: training.momentum must be in [0, 1), got %v", ErrInvalidConfig, t.Momentum)
	}
	return nil
}

// ZapConfig returns a production zap config for the logging section.
// verbose forces debug level.
func (c *Config) ZapConfig(verbose bool) (zap.Config, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = c.Logging.Format

	level, err := zap.ParseAtomicLevel(c.Logging.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	if verbose {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.Level = level
	return zc, nil
}
