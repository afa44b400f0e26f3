package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix is used when a loader is created without a prefix.
const DefaultEnvPrefix = "DOCSTORE"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "DOCSTORE")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	cfg, _, err := l.load()
	return cfg, err
}

// LoadSettings loads the configuration and also returns the effective
// settings as a nested map keyed like the config file.
func (l *ViperLoader) LoadSettings() (*Config, map[string]any, error) {
	cfg, v, err := l.load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, v.AllSettings(), nil
}

func (l *ViperLoader) load() (*Config, *viper.Viper, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.prefix())
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, v, nil
}

// SecretKeys lists the settings that hold credentials.
var SecretKeys = []string{
	"snapshot.s3.access_key_id",
	"snapshot.s3.secret_access_key",
	"snapshot.s3.session_token",
	"snapshot.redis.url",
	"snapshot.mongodb.url",
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Logging
	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))

	// Query
	v.BindEnv("query.join_workers", l.prefixedEnv("QUERY_JOIN_WORKERS"))
	v.BindEnv("query.max_join_depth", l.prefixedEnv("QUERY_MAX_JOIN_DEPTH"))

	// Snapshot
	v.BindEnv("snapshot.backend", l.prefixedEnv("SNAPSHOT_BACKEND"))
	v.BindEnv("snapshot.dir", l.prefixedEnv("SNAPSHOT_DIR"))
	v.BindEnv("snapshot.operation_timeout", l.prefixedEnv("SNAPSHOT_OPERATION_TIMEOUT"))
	v.BindEnv("snapshot.s3.bucket", l.prefixedEnv("SNAPSHOT_S3_BUCKET"))
	v.BindEnv("snapshot.s3.region", l.prefixedEnv("SNAPSHOT_S3_REGION"), "AWS_REGION")
	v.BindEnv("snapshot.s3.endpoint", l.prefixedEnv("SNAPSHOT_S3_ENDPOINT"))
	v.BindEnv("snapshot.s3.prefix", l.prefixedEnv("SNAPSHOT_S3_PREFIX"))
	v.BindEnv("snapshot.s3.access_key_id", l.prefixedEnv("SNAPSHOT_S3_ACCESS_KEY_ID"))
	v.BindEnv("snapshot.s3.secret_access_key", l.prefixedEnv("SNAPSHOT_S3_SECRET_ACCESS_KEY"))
	v.BindEnv("snapshot.s3.session_token", l.prefixedEnv("SNAPSHOT_S3_SESSION_TOKEN"))
	v.BindEnv("snapshot.s3.use_path_style", l.prefixedEnv("SNAPSHOT_S3_USE_PATH_STYLE"))
	v.BindEnv("snapshot.redis.url", l.prefixedEnv("SNAPSHOT_REDIS_URL"))
	v.BindEnv("snapshot.redis.key_prefix", l.prefixedEnv("SNAPSHOT_REDIS_KEY_PREFIX"))
	v.BindEnv("snapshot.redis.pool_size", l.prefixedEnv("SNAPSHOT_REDIS_POOL_SIZE"))
	v.BindEnv("snapshot.mongodb.url", l.prefixedEnv("SNAPSHOT_MONGODB_URL"))
	v.BindEnv("snapshot.mongodb.database", l.prefixedEnv("SNAPSHOT_MONGODB_DATABASE"))
	v.BindEnv("snapshot.mongodb.collection", l.prefixedEnv("SNAPSHOT_MONGODB_COLLECTION"))
	v.BindEnv("snapshot.breaker.enabled", l.prefixedEnv("SNAPSHOT_BREAKER_ENABLED"))
	v.BindEnv("snapshot.breaker.max_failures", l.prefixedEnv("SNAPSHOT_BREAKER_MAX_FAILURES"))
	v.BindEnv("snapshot.breaker.reset_timeout", l.prefixedEnv("SNAPSHOT_BREAKER_RESET_TIMEOUT"))

	// Events
	v.BindEnv("events.enabled", l.prefixedEnv("EVENTS_ENABLED"))
	v.BindEnv("events.buffer", l.prefixedEnv("EVENTS_BUFFER"))

	// Observability
	v.BindEnv("metrics.enabled", l.prefixedEnv("METRICS_ENABLED"))
	v.BindEnv("metrics.namespace", l.prefixedEnv("METRICS_NAMESPACE"))
	v.BindEnv("tracing.enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("tracing.endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("tracing.sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
}

func (l *ViperLoader) prefix() string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return strings.ToUpper(prefix)
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	return fmt.Sprintf("%s_%s", l.prefix(), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("query.join_workers", cfg.Query.JoinWorkers)
	v.SetDefault("query.max_join_depth", cfg.Query.MaxJoinDepth)

	v.SetDefault("snapshot.backend", cfg.Snapshot.Backend)
	v.SetDefault("snapshot.dir", cfg.Snapshot.Dir)
	v.SetDefault("snapshot.operation_timeout", cfg.Snapshot.OperationTimeout)
	v.SetDefault("snapshot.s3.bucket", cfg.Snapshot.S3.Bucket)
	v.SetDefault("snapshot.s3.region", cfg.Snapshot.S3.Region)
	v.SetDefault("snapshot.s3.endpoint", cfg.Snapshot.S3.Endpoint)
	v.SetDefault("snapshot.s3.prefix", cfg.Snapshot.S3.Prefix)
	v.SetDefault("snapshot.s3.access_key_id", cfg.Snapshot.S3.AccessKeyID)
	v.SetDefault("snapshot.s3.secret_access_key", cfg.Snapshot.S3.SecretAccessKey)
	v.SetDefault("snapshot.s3.session_token", cfg.Snapshot.S3.SessionToken)
	v.SetDefault("snapshot.s3.use_path_style", cfg.Snapshot.S3.UsePathStyle)
	v.SetDefault("snapshot.redis.url", cfg.Snapshot.Redis.URL)
	v.SetDefault("snapshot.redis.key_prefix", cfg.Snapshot.Redis.KeyPrefix)
	v.SetDefault("snapshot.redis.pool_size", cfg.Snapshot.Redis.PoolSize)
	v.SetDefault("snapshot.mongodb.url", cfg.Snapshot.MongoDB.URL)
	v.SetDefault("snapshot.mongodb.database", cfg.Snapshot.MongoDB.Database)
	v.SetDefault("snapshot.mongodb.collection", cfg.Snapshot.MongoDB.Collection)
	v.SetDefault("snapshot.breaker.enabled", cfg.Snapshot.Breaker.Enabled)
	v.SetDefault("snapshot.breaker.max_failures", cfg.Snapshot.Breaker.MaxFailures)
	v.SetDefault("snapshot.breaker.reset_timeout", cfg.Snapshot.Breaker.ResetTimeout)

	v.SetDefault("events.enabled", cfg.Events.Enabled)
	v.SetDefault("events.buffer", cfg.Events.Buffer)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)
}

// Validate validates the configuration and returns detailed errors
func (l *ViperLoader) Validate(cfg *Config) error {
	return cfg.Validate()
}

// Validate checks if the configuration is valid. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("invalid log.level: %s (must be one of: %v)", c.Log.Level, validLevels))
	}
	validFormats := []string{"json", "text", "console"}
	if !contains(validFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("invalid log.format: %s (must be one of: %v)", c.Log.Format, validFormats))
	}

	if c.Query.JoinWorkers < 1 {
		errs = append(errs, fmt.Errorf("query.join_workers must be positive, got %d", c.Query.JoinWorkers))
	}
	if c.Query.MaxJoinDepth < 1 {
		errs = append(errs, fmt.Errorf("query.max_join_depth must be positive, got %d", c.Query.MaxJoinDepth))
	}

	if c.Snapshot.OperationTimeout < 0 {
		errs = append(errs, errors.New("snapshot.operation_timeout must not be negative"))
	}
	if c.Snapshot.Breaker.Enabled {
		if c.Snapshot.Breaker.MaxFailures < 1 {
			errs = append(errs, fmt.Errorf("snapshot.breaker.max_failures must be positive, got %d", c.Snapshot.Breaker.MaxFailures))
		}
		if c.Snapshot.Breaker.ResetTimeout <= 0 {
			errs = append(errs, errors.New("snapshot.breaker.reset_timeout must be positive"))
		}
	}
	switch strings.ToLower(c.Snapshot.Backend) {
	case SnapshotBackendFile:
		if strings.TrimSpace(c.Snapshot.Dir) == "" {
			errs = append(errs, errors.New("snapshot.dir is required for the file backend"))
		}
	case SnapshotBackendS3:
		if c.Snapshot.S3.Bucket == "" {
			errs = append(errs, errors.New("snapshot.s3.bucket is required for the s3 backend"))
		}
		if c.Snapshot.S3.Region == "" {
			errs = append(errs, errors.New("snapshot.s3.region is required for the s3 backend"))
		}
		if (c.Snapshot.S3.AccessKeyID == "") != (c.Snapshot.S3.SecretAccessKey == "") {
			errs = append(errs, errors.New("snapshot.s3.access_key_id and snapshot.s3.secret_access_key must be set together"))
		}
	case SnapshotBackendRedis:
		if c.Snapshot.Redis.URL == "" {
			errs = append(errs, errors.New("snapshot.redis.url is required for the redis backend"))
		}
		if c.Snapshot.Redis.PoolSize < 0 {
			errs = append(errs, errors.New("snapshot.redis.pool_size must not be negative"))
		}
	case SnapshotBackendMongoDB:
		if c.Snapshot.MongoDB.URL == "" {
			errs = append(errs, errors.New("snapshot.mongodb.url is required for the mongodb backend"))
		}
		if c.Snapshot.MongoDB.Database == "" {
			errs = append(errs, errors.New("snapshot.mongodb.database is required for the mongodb backend"))
		}
		if c.Snapshot.MongoDB.Collection == "" {
			errs = append(errs, errors.New("snapshot.mongodb.collection is required for the mongodb backend"))
		}
	default:
		validBackends := []string{SnapshotBackendFile, SnapshotBackendS3, SnapshotBackendRedis, SnapshotBackendMongoDB}
		errs = append(errs, fmt.Errorf("invalid snapshot.backend: %s (must be one of: %v)", c.Snapshot.Backend, validBackends))
	}

	if c.Events.Buffer < 0 {
		errs = append(errs, fmt.Errorf("events.buffer must not be negative, got %d", c.Events.Buffer))
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Namespace) == "" {
		errs = append(errs, errors.New("metrics.namespace is required when metrics are enabled"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
