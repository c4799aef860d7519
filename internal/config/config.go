// Package config provides the configuration structure for the tts-backend.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddr           = "localhost:50051"
	DefaultEngine         = "tone"
	DefaultEngineBinary   = "tts-engine"
	DefaultTimeoutSeconds = 300
	DefaultStartupSeconds = 30
	DefaultStopSeconds    = 10
	DefaultHarnessModel   = "parler-tts/parler_tts_mini_v0.1"
	DefaultHarnessText    = "Hey, how are you doing today?"
	DefaultTextSubject    = "text.processed"
	DefaultAudioBucket    = "AUDIO_FILES"
)

// ErrAddrEmpty indicates that the backend has no listen address.
var ErrAddrEmpty = errors.New("backend address cannot be empty")

// BackendConfig holds the gRPC service settings.
type BackendConfig struct {
	Addr          string `toml:"addr"`
	Engine        string `toml:"engine"`
	ModelsFile    string `toml:"models_file"`
	NormalizeText bool   `toml:"normalize_text"`
}

// EngineConfig holds the settings of the synthesis engines.
type EngineConfig struct {
	BinaryPath     string  `toml:"binary_path"`
	SampleRate     int     `toml:"sample_rate"`
	Temperature    float64 `toml:"temperature"`
	TopP           float64 `toml:"top_p"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled"`
	URL                    string `toml:"url"`
	TextProcessedSubject   string `toml:"text_processed_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// MetricsConfig holds the Prometheus exporter settings. An empty address disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// HarnessConfig holds the defaults of the contract runner.
type HarnessConfig struct {
	Command               string   `toml:"command"`
	Args                  []string `toml:"args"`
	Addr                  string   `toml:"addr"`
	Model                 string   `toml:"model"`
	Text                  string   `toml:"text"`
	StartupTimeoutSeconds int      `toml:"startup_timeout_seconds"`
	StopTimeoutSeconds    int      `toml:"stop_timeout_seconds"`
}

// Config is the root configuration structure.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Engine  EngineConfig  `toml:"engine"`
	NATS    NATSConfig    `toml:"nats"`
	Metrics MetricsConfig `toml:"metrics"`
	Paths   PathsConfig   `toml:"paths"`
	Harness HarnessConfig `toml:"harness"`
}

// Load loads the configuration for the tts-backend.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config

	cfg.ApplyDefaults()

	return &cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Backend.Addr, DefaultAddr)
	setDefault(&c.Backend.Engine, DefaultEngine)
	setDefault(&c.Engine.BinaryPath, DefaultEngineBinary)
	setDefault(&c.NATS.TextProcessedSubject, DefaultTextSubject)
	setDefault(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)
	setDefault(&c.Harness.Addr, DefaultAddr)
	setDefault(&c.Harness.Model, DefaultHarnessModel)
	setDefault(&c.Harness.Text, DefaultHarnessText)

	if c.Engine.TimeoutSeconds <= 0 {
		c.Engine.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.Harness.StartupTimeoutSeconds <= 0 {
		c.Harness.StartupTimeoutSeconds = DefaultStartupSeconds
	}

	if c.Harness.StopTimeoutSeconds <= 0 {
		c.Harness.StopTimeoutSeconds = DefaultStopSeconds
	}
}

// Validate checks the settings the backend cannot start without.
func (c *Config) Validate() error {
	if c.Backend.Addr == "" {
		return ErrAddrEmpty
	}

	return nil
}

// EngineTimeout returns the per-call synthesis timeout.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
