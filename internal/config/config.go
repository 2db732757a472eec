// Package config loads docsink settings from a YAML (or JSON) file and
// DOCSINK_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorePebble = "pebble"
	StoreRemote = "remote"
)

type Config struct {
	Log    LogConfig    `yaml:"log"`
	Sink   SinkConfig   `yaml:"sink"`
	Store  StoreConfig  `yaml:"store"`
	Ingest IngestConfig `yaml:"ingest"`
}

// LogConfig configures the diagnostics logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SinkConfig struct {
	MinimumLevel    string        `yaml:"minimumLevel"`
	BatchSize       int           `yaml:"batchSize"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	Database        string        `yaml:"database"`
	// Expirations are Go durations, "never", or empty for unset.
	DefaultExpiration    string `yaml:"defaultExpiration"`
	ErrorExpiration      string `yaml:"errorExpiration"`
	ExpirationExpression string `yaml:"expirationExpression"`
	Filter               string `yaml:"filter"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"`

	DataDir       string        `yaml:"dataDir"`
	Fsync         string        `yaml:"fsync"`
	FsyncInterval time.Duration `yaml:"fsyncInterval"`
	PurgeInterval time.Duration `yaml:"purgeInterval"`

	URL        string        `yaml:"url"`
	MaxRetries int           `yaml:"maxRetries"`
	RetryDelay time.Duration `yaml:"retryDelay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IngestConfig configures file following. An empty Root disables it.
type IngestConfig struct {
	Root               string        `yaml:"root"`
	ScanInterval       time.Duration `yaml:"scanInterval"`
	MinWorkers         int           `yaml:"minWorkers"`
	MaxWorkers         int           `yaml:"maxWorkers"`
	FileQueueSize      int           `yaml:"fileQueueSize"`
	NodeName           string        `yaml:"nodeName"`
	IdleTimeout        time.Duration `yaml:"idleTimeout"`
	FromStart          bool          `yaml:"fromStart"`
	ScaleUpThreshold   float64       `yaml:"scaleUpThreshold"`
	ScaleDownThreshold float64       `yaml:"scaleDownThreshold"`
	ScaleCheckInterval time.Duration `yaml:"scaleCheckInterval"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Sink: SinkConfig{
			MinimumLevel:    "Verbose",
			BatchSize:       50,
			FlushInterval:   2 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Kind:          StorePebble,
			DataDir:       "./data",
			Fsync:         "interval",
			FsyncInterval: 100 * time.Millisecond,
			PurgeInterval: time.Minute,
			MaxRetries:    1,
			RetryDelay:    time.Second,
			Timeout:       10 * time.Second,
		},
		Ingest: IngestConfig{
			ScanInterval:       30 * time.Second,
			MinWorkers:         2,
			MaxWorkers:         10,
			FileQueueSize:      50,
			NodeName:           "unknown",
			IdleTimeout:        5 * time.Minute,
			ScaleUpThreshold:   0.9,
			ScaleDownThreshold: 0.3,
			ScaleCheckInterval: 15 * time.Second,
		},
	}
}

// Load returns defaults overlaid with the file at path (when non-empty) and
// then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// decode reads YAML strictly; JSON documents are valid YAML.
func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Store.Kind {
	case StorePebble:
		if c.Store.DataDir == "" {
			return errors.New("config: store.dataDir is required for the pebble store")
		}
	case StoreRemote:
		if c.Store.URL == "" {
			return errors.New("config: store.url is required for the remote store")
		}
	default:
		return fmt.Errorf("config: unknown store kind %q; use %s|%s", c.Store.Kind, StorePebble, StoreRemote)
	}
	if c.Sink.BatchSize <= 0 {
		return fmt.Errorf("config: sink.batchSize must be positive, got %d", c.Sink.BatchSize)
	}
	if c.Sink.FlushInterval <= 0 {
		return fmt.Errorf("config: sink.flushInterval must be positive, got %v", c.Sink.FlushInterval)
	}
	if c.Ingest.MinWorkers > c.Ingest.MaxWorkers {
		return fmt.Errorf("config: ingest.minWorkers %d exceeds maxWorkers %d", c.Ingest.MinWorkers, c.Ingest.MaxWorkers)
	}
	return nil
}
