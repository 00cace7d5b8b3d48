// Package telcfg loads runtime configuration from file and environment
// using a viper-backed loader, mapped onto this runtime's component
// configs.
package telcfg

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultRingCapacity       = 4096
	defaultFlushInterval      = 100 * time.Millisecond
	defaultMaxPoints          = 1440
	defaultMaxMetrics         = 10000
	defaultRetentionPeriod    = 24 * time.Hour
	defaultMaxSpansPerTrace   = 1024
	defaultMaxTraces          = 10000
	defaultHistorySize        = 100
	defaultCollectionInterval = time.Second
	defaultBufferSize         = 1000
	defaultBatchSize          = 100
	defaultBatchTimeout       = 5 * time.Second
	defaultMaxRetryAttempts   = 3
	defaultInitialBackoff     = 100 * time.Millisecond
	defaultBackoffMultiplier  = 2.0
	defaultQueueCapacity      = 4096
)

// Config mirrors monitor.Config's shape in mapstructure-tagged, file/env
// loadable form.
type Config struct {
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Spans       SpansConfig       `mapstructure:"spans"`
	Export      ExportConfig      `mapstructure:"export"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	SelfObserve SelfObserveConfig `mapstructure:"self_observability"`
}

// SelfObserveConfig configures OTLP self-instrumentation for the runtime's
// own operation (internal/observability), independent of the Export config
// above, which carries the application data this runtime collects.
type SelfObserveConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"` // e.g. "localhost:4317" (grpc) or "localhost:4318" (http)
	// Protocol selects the OTLP wire transport: "grpc" (default) or "http".
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// AggregationConfig points at an optional YAML rule-set file for the
// aggregation processor (C8); empty means no rules are preloaded.
type AggregationConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// MonitorConfig configures the facade's lifecycle cadence.
type MonitorConfig struct {
	HistorySize        int           `mapstructure:"history_size"`
	CollectionInterval time.Duration `mapstructure:"collection_interval"`
	BufferSize         int           `mapstructure:"buffer_size"`
}

// MetricsConfig configures the metric storage engine.
type MetricsConfig struct {
	RingCapacity    int           `mapstructure:"ring_capacity"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	MaxPoints       int           `mapstructure:"max_points"`
	MaxMetrics      int           `mapstructure:"max_metrics"`
	RetentionPeriod time.Duration `mapstructure:"retention_period"`
}

// SpansConfig configures the trace runtime.
type SpansConfig struct {
	MaxSpansPerTrace int `mapstructure:"max_spans_per_trace"`
	MaxTraces        int `mapstructure:"max_traces"`
}

// ExportConfig configures the export pipeline.
type ExportConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Target            string        `mapstructure:"target"` // otlp-grpc|otlp-http|jaeger|zipkin|statsd
	Endpoint          string        `mapstructure:"endpoint"`
	QueueCapacity     int           `mapstructure:"queue_capacity"`
	BatchSize         int           `mapstructure:"batch_size"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	MaxRetryAttempts  int           `mapstructure:"max_retry_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	// CompressionEnabled LZ4-block-compresses HTTP export bodies
	// (jaeger, zipkin targets only).
	CompressionEnabled bool `mapstructure:"compression_enabled"`
}

// LoggingConfig configures the ambient logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Sentinel validation errors.
var (
	ErrInvalidHistorySize        = errors.New("history_size must be positive")
	ErrInvalidCollectionInterval = errors.New("collection_interval must be at least 10ms")
	ErrInvalidBufferSize         = errors.New("buffer_size must be >= history_size")
)

// Load reads configuration from configPath (or the default search path:
// ./config.yaml, ./config/config.yaml) and the TELEMETRY_-prefixed
// environment, applying defaults and validating the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/telemetry")
	}

	v.SetEnvPrefix("TELEMETRY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor.history_size", defaultHistorySize)
	v.SetDefault("monitor.collection_interval", defaultCollectionInterval)
	v.SetDefault("monitor.buffer_size", defaultBufferSize)

	v.SetDefault("metrics.ring_capacity", defaultRingCapacity)
	v.SetDefault("metrics.flush_interval", defaultFlushInterval)
	v.SetDefault("metrics.max_points", defaultMaxPoints)
	v.SetDefault("metrics.max_metrics", defaultMaxMetrics)
	v.SetDefault("metrics.retention_period", defaultRetentionPeriod)

	v.SetDefault("spans.max_spans_per_trace", defaultMaxSpansPerTrace)
	v.SetDefault("spans.max_traces", defaultMaxTraces)

	v.SetDefault("export.enabled", false)
	v.SetDefault("export.queue_capacity", defaultQueueCapacity)
	v.SetDefault("export.batch_size", defaultBatchSize)
	v.SetDefault("export.batch_timeout", defaultBatchTimeout)
	v.SetDefault("export.max_retry_attempts", defaultMaxRetryAttempts)
	v.SetDefault("export.initial_backoff", defaultInitialBackoff)
	v.SetDefault("export.backoff_multiplier", defaultBackoffMultiplier)
	v.SetDefault("export.compression_enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("aggregation.rules_file", "")

	v.SetDefault("self_observability.enabled", false)
	v.SetDefault("self_observability.protocol", "grpc")
	v.SetDefault("self_observability.insecure", false)
	v.SetDefault("self_observability.sample_ratio", 0.0)
}

func validate(cfg *Config) error {
	if cfg.Monitor.HistorySize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHistorySize, cfg.Monitor.HistorySize)
	}

	if cfg.Monitor.CollectionInterval < 10*time.Millisecond {
		return fmt.Errorf("%w: %s", ErrInvalidCollectionInterval, cfg.Monitor.CollectionInterval)
	}

	if cfg.Monitor.BufferSize < cfg.Monitor.HistorySize {
		return fmt.Errorf("%w: buffer_size=%d history_size=%d", ErrInvalidBufferSize, cfg.Monitor.BufferSize, cfg.Monitor.HistorySize)
	}

	return nil
}
