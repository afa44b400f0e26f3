// Package factory builds the configured snapshot store.
package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/docstore/pkg/config"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/resilience"
	"github.com/nimburion/docstore/pkg/store"
	"github.com/nimburion/docstore/pkg/store/file"
	"github.com/nimburion/docstore/pkg/store/mongodb"
	"github.com/nimburion/docstore/pkg/store/redis"
	"github.com/nimburion/docstore/pkg/store/s3"
)

// NewSnapshotStore selects and initializes the snapshot backend named by
// cfg.Backend. Network backends verify connectivity before returning.
func NewSnapshotStore(ctx context.Context, cfg config.SnapshotConfig, log logger.Logger) (store.SnapshotStore, error) {
	var (
		s   store.SnapshotStore
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.SnapshotBackendFile, "":
		s, err = asStore(file.NewAdapter(file.Config{Dir: cfg.Dir}, log))
	case config.SnapshotBackendS3:
		s, err = asStore(s3.NewAdapter(ctx, s3.Config{
			Bucket:           cfg.S3.Bucket,
			Region:           cfg.S3.Region,
			Endpoint:         cfg.S3.Endpoint,
			Prefix:           cfg.S3.Prefix,
			AccessKeyID:      cfg.S3.AccessKeyID,
			SecretAccessKey:  cfg.S3.SecretAccessKey,
			SessionToken:     cfg.S3.SessionToken,
			UsePathStyle:     cfg.S3.UsePathStyle,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	case config.SnapshotBackendRedis:
		s, err = asStore(redis.NewAdapter(ctx, redis.Config{
			URL:              cfg.Redis.URL,
			KeyPrefix:        cfg.Redis.KeyPrefix,
			PoolSize:         cfg.Redis.PoolSize,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	case config.SnapshotBackendMongoDB:
		s, err = asStore(mongodb.NewAdapter(ctx, mongodb.Config{
			URL:              cfg.MongoDB.URL,
			Database:         cfg.MongoDB.Database,
			Collection:       cfg.MongoDB.Collection,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	default:
		return nil, fmt.Errorf("unsupported snapshot.backend %q (supported: file, s3, redis, mongodb)", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return guard(s, cfg.Breaker, log), nil
}

func guard(s store.SnapshotStore, cfg config.BreakerConfig, log logger.Logger) store.SnapshotStore {
	if !cfg.Enabled {
		return s
	}
	if log == nil {
		log = logger.NewNop()
	}
	backend := s.Backend()
	breaker := resilience.NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout,
		resilience.WithIgnore(func(err error) bool { return !store.IsBackendFailure(err) }),
		resilience.WithStateChange(func(from, to resilience.State) {
			log.Warn("snapshot store circuit breaker changed state",
				"backend", backend, "from", from.String(), "to", to.String())
		}),
	)
	return store.Guard(s, breaker)
}

// asStore drops the typed adapter pointer so a failed constructor yields a
// nil interface.
func asStore[T store.SnapshotStore](adapter T, err error) (store.SnapshotStore, error) {
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
