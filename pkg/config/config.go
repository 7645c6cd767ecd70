// Package config loads and validates the driftflow configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/driftflow/pkg/store"
)

// Config represents the driftflow configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DRIFTFLOW_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and continuous profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Checkpoint configures checkpoint storage and the upload queue
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`

	// Status configures the operational status HTTP server
	Status StatusConfig `mapstructure:"status" yaml:"status"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is "text" or "json"
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls tracing and profiling.
type TelemetryConfig struct {
	// Enabled turns OTLP trace export on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC endpoint (e.g. "localhost:4317")
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS on the exporter connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate, 0.0 to 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`

	// Profiling configures Pyroscope continuous profiling
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string   `mapstructure:"endpoint" yaml:"endpoint"`
	Types    []string `mapstructure:"types" yaml:"types"`
}

// CheckpointConfig configures checkpoint storage.
type CheckpointConfig struct {
	// Dir is the checkpoint directory: a filesystem path for local and
	// badger storage, a key prefix for S3.
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`

	// Storage selects the storage backend
	Storage store.Config `mapstructure:"storage" yaml:"storage"`

	// PersistQueueCapacity bounds the upload queue, in messages
	PersistQueueCapacity int `mapstructure:"persist_queue_capacity" validate:"gt=0" yaml:"persist_queue_capacity"`
}

// StatusConfig configures the status HTTP server.
type StatusConfig struct {
	// Enabled makes Listen required during validation. The checkpoint
	// monitor command serves the status API whether or not it is set.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the address to bind (e.g. "127.0.0.1:9090")
	Listen string `mapstructure:"listen" validate:"required_if=Enabled true" yaml:"listen"`

	// Metrics exposes /metrics on the status server
	Metrics bool `mapstructure:"metrics" yaml:"metrics"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath loads defaults plus environment overrides; a missing
// explicit file is an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("DRIFTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration against its validation tags plus the
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	switch cfg.Checkpoint.Storage.Type {
	case "", store.BackendLocal, store.BackendBadger:
	case store.BackendS3:
		if cfg.Checkpoint.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 storage requires a bucket")
		}
		if cfg.Checkpoint.Storage.S3.Region == "" {
			return fmt.Errorf("s3 storage requires a region")
		}
	default:
		return fmt.Errorf("unknown storage type %q", cfg.Checkpoint.Storage.Type)
	}

	return nil
}
