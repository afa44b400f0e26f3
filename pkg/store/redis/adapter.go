// Package redis stores snapshots as Redis string values.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/store"
)

// Backend is the backend name reported by the adapter.
const Backend = "redis"

// DefaultKeyPrefix namespaces snapshot keys when no prefix is configured.
const DefaultKeyPrefix = "docstore:snapshot:"

const scanBatch = 100

// Config holds Redis connection configuration
type Config struct {
	URL              string
	KeyPrefix        string
	PoolSize         int
	OperationTimeout time.Duration
}

// client is the subset of *redis.Client the adapter uses.
type client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// Adapter stores one key per snapshot, named KeyPrefix + name.
type Adapter struct {
	client client
	logger logger.Logger
	config Config

	mu     sync.RWMutex
	closed bool
}

// NewAdapter creates a new Redis adapter with connection pooling
func NewAdapter(ctx context.Context, cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	if cfg.OperationTimeout > 0 {
		opts.ReadTimeout = cfg.OperationTimeout
		opts.WriteTimeout = cfg.OperationTimeout
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("Redis snapshot store initialized",
		"pool_size", opts.PoolSize,
		"key_prefix", keyPrefix(cfg),
	)
	return newAdapter(rdb, cfg, log), nil
}

func newAdapter(c client, cfg Config, log logger.Logger) *Adapter {
	cfg.KeyPrefix = keyPrefix(cfg)
	return &Adapter{client: c, logger: log, config: cfg}
}

func keyPrefix(cfg Config) string {
	if cfg.KeyPrefix == "" {
		return DefaultKeyPrefix
	}
	return cfg.KeyPrefix
}

// Backend implements store.SnapshotStore.
func (a *Adapter) Backend() string { return Backend }

// Ping verifies the Redis connection is alive
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	return a.client.Ping(ctx).Err()
}

// PutSnapshot stores data under the key for name without expiration.
func (a *Adapter) PutSnapshot(ctx context.Context, name string, data []byte) error {
	key, err := a.key(name)
	if err != nil {
		return err
	}
	if err := a.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	a.logger.Debug("snapshot stored", "key", key, "bytes", len(data))
	return nil
}

// GetSnapshot returns the payload stored under the key for name.
func (a *Adapter) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	key, err := a.key(name)
	if err != nil {
		return nil, err
	}
	val, err := a.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", store.ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// DeleteSnapshot removes the key for name.
func (a *Adapter) DeleteSnapshot(ctx context.Context, name string) error {
	key, err := a.key(name)
	if err != nil {
		return err
	}
	if err := a.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// ListSnapshots walks the key space with SCAN, so it never blocks the server
// the way KEYS would.
func (a *Adapter) ListSnapshots(ctx context.Context) ([]string, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	prefix := a.config.KeyPrefix
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := a.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys with prefix %s: %w", prefix, err)
		}
		for _, key := range keys {
			if name := strings.TrimPrefix(key, prefix); name != "" && name != key {
				seen[name] = struct{}{}
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// HealthCheck verifies the Redis connection is healthy
func (a *Adapter) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := a.Ping(healthCtx); err != nil {
		a.logger.Error("Redis health check failed", "error", err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection pool. Closing twice is a no-op.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.logger.Info("closing Redis connection")
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}

func (a *Adapter) key(name string) (string, error) {
	if err := a.ensureOpen(); err != nil {
		return "", err
	}
	if err := store.ValidateName(name); err != nil {
		return "", err
	}
	return a.config.KeyPrefix + name, nil
}

func (a *Adapter) ensureOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return store.ErrClosed
	}
	return nil
}
