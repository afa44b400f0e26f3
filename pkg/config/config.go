package config

import "time"

// Snapshot backend type constants
const (
	// SnapshotBackendFile stores snapshots as files in a local directory
	SnapshotBackendFile = "file"
	// SnapshotBackendS3 stores snapshots as objects in an S3 bucket
	SnapshotBackendS3 = "s3"
	// SnapshotBackendRedis stores snapshots as Redis string values
	SnapshotBackendRedis = "redis"
	// SnapshotBackendMongoDB stores snapshots as documents in a MongoDB collection
	SnapshotBackendMongoDB = "mongodb"
)

// Config is the root configuration structure of a docstore database
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Log      LogConfig      `mapstructure:"log"`
	Query    QueryConfig    `mapstructure:"query"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Events   EventsConfig   `mapstructure:"events"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// QueryConfig configures cursor execution.
type QueryConfig struct {
	// JoinWorkers bounds the shared pool resolving joins in parallel.
	JoinWorkers  int `mapstructure:"join_workers"`
	MaxJoinDepth int `mapstructure:"max_join_depth"`
}

// SnapshotConfig configures where collection snapshots are persisted.
type SnapshotConfig struct {
	Backend          string        `mapstructure:"backend"`
	Dir              string        `mapstructure:"dir"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	S3               S3Config      `mapstructure:"s3"`
	Redis            RedisConfig   `mapstructure:"redis"`
	MongoDB          MongoDBConfig `mapstructure:"mongodb"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker guarding the snapshot store.
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// S3Config configures the S3 snapshot backend.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// RedisConfig configures the Redis snapshot backend.
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
	PoolSize  int    `mapstructure:"pool_size"`
}

// MongoDBConfig configures the MongoDB snapshot backend.
type MongoDBConfig struct {
	URL        string `mapstructure:"url"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// EventsConfig configures mutation event delivery.
type EventsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Buffer is the per-subscriber channel capacity.
	Buffer int `mapstructure:"buffer"`
}

// MetricsConfig configures Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "docstore",
			Environment: "development",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Query: QueryConfig{
			JoinWorkers:  8,
			MaxJoinDepth: 8,
		},
		Snapshot: SnapshotConfig{
			Backend:          SnapshotBackendFile,
			Dir:              "./data",
			OperationTimeout: 30 * time.Second,
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "snapshots/",
			},
			Redis: RedisConfig{
				KeyPrefix: "docstore:snapshot:",
				PoolSize:  10,
			},
			MongoDB: MongoDBConfig{
				Database:   "docstore",
				Collection: "snapshots",
			},
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
			},
		},
		Events: EventsConfig{
			Enabled: true,
			Buffer:  64,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "docstore",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
		},
	}
}
