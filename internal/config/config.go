// Package config loads and saves the application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file lives unless overridden.
const DefaultPath = "config.yaml"

type Gateway struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Company  string `yaml:"company"`
	FromDate string `yaml:"from_date"`
	ToDate   string `yaml:"to_date"`
	Timeout  int    `yaml:"timeout_seconds"`
}

type Database struct {
	Path       string `yaml:"path"`
	SchemaFile string `yaml:"schema_file"`
}

type Sync struct {
	Mode      string `yaml:"mode"` // "sequential" or "parallel"
	BatchSize int    `yaml:"batch_size"`
	SpecFile  string `yaml:"spec_file"`
	StateFile string `yaml:"state_file"`
}

type Retry struct {
	Enabled           bool    `yaml:"enabled"`
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelay      int     `yaml:"initial_delay_seconds"`
	Strategy          string  `yaml:"strategy"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxDelay          int     `yaml:"max_delay_seconds"`
}

type CircuitBreaker struct {
	Enabled          bool `yaml:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold"`
	RecoveryTimeout  int  `yaml:"recovery_timeout_seconds"`
	HalfOpenMax      int  `yaml:"half_open_max_calls"`
}

type Schedule struct {
	Enabled bool     `yaml:"enabled"`
	Kind    string   `yaml:"sync_type"`
	Time    string   `yaml:"time"` // "HH:MM"
	Days    []string `yaml:"days"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Config is the whole application configuration.
type Config struct {
	Gateway        Gateway        `yaml:"gateway"`
	Database       Database       `yaml:"database"`
	Sync           Sync           `yaml:"sync"`
	Retry          Retry          `yaml:"retry"`
	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker"`
	Schedule       Schedule       `yaml:"schedule"`
	Logging        Logging        `yaml:"logging"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Gateway: Gateway{
			Server:   "localhost",
			Port:     9000,
			FromDate: "2000-01-01",
			ToDate:   "2099-12-31",
			Timeout:  60,
		},
		Database: Database{Path: "erpsync.db"},
		Sync: Sync{
			Mode:      "sequential",
			BatchSize: 1000,
			StateFile: "sync_state.json",
		},
		Retry: Retry{
			Enabled:           true,
			MaxAttempts:       3,
			InitialDelay:      5,
			Strategy:          "exponential",
			BackoffMultiplier: 2,
			MaxDelay:          60,
		},
		CircuitBreaker: CircuitBreaker{
			Enabled:          true,
			FailureThreshold: 5,
			RecoveryTimeout:  60,
			HalfOpenMax:      1,
		},
		Schedule: Schedule{
			Enabled: false,
			Kind:    "incremental",
			Time:    "06:00",
			Days:    []string{"mon", "tue", "wed", "thu", "fri", "sat"},
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads the config file at path, filling any missing values with
// defaults. A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 1000
	}
	if cfg.Sync.StateFile == "" {
		cfg.Sync.StateFile = "sync_state.json"
	}
	return cfg, nil
}

// Save writes the config atomically: temp file in the same directory,
// then rename.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.yaml.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
