package config

import (
	"github.com/spf13/viper"

	"github.com/marmos91/driftflow/pkg/checkpoint"
	"github.com/marmos91/driftflow/pkg/store"
)

// Default values applied when neither the config file nor the environment
// sets a key.
const (
	DefaultLogLevel  = "INFO"
	DefaultLogFormat = "text"
	DefaultLogOutput = "stdout"

	DefaultCheckpointDir = "./checkpoints"

	DefaultTelemetryEndpoint = "localhost:4317"
	DefaultProfilingEndpoint = "http://localhost:4040"

	DefaultStatusListen = "127.0.0.1:9090"
)

// setDefaults installs the default configuration into a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.output", DefaultLogOutput)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", DefaultTelemetryEndpoint)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.endpoint", DefaultProfilingEndpoint)
	v.SetDefault("telemetry.profiling.types", []string{"cpu", "inuse_space"})

	v.SetDefault("checkpoint.dir", DefaultCheckpointDir)
	v.SetDefault("checkpoint.storage.type", store.BackendLocal)
	v.SetDefault("checkpoint.persist_queue_capacity", checkpoint.DefaultQueueCapacity)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.listen", DefaultStatusListen)
	v.SetDefault("status.metrics", true)
}

// GetDefaultConfig returns the configuration produced by defaults alone.
func GetDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: DefaultLogOutput,
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   DefaultTelemetryEndpoint,
			Insecure:   true,
			SampleRate: 1.0,
			Profiling: ProfilingConfig{
				Enabled:  false,
				Endpoint: DefaultProfilingEndpoint,
				Types:    []string{"cpu", "inuse_space"},
			},
		},
		Checkpoint: CheckpointConfig{
			Dir:                  DefaultCheckpointDir,
			Storage:              store.Config{Type: store.BackendLocal},
			PersistQueueCapacity: checkpoint.DefaultQueueCapacity,
		},
		Status: StatusConfig{
			Enabled: false,
			Listen:  DefaultStatusListen,
			Metrics: true,
		},
	}
}
