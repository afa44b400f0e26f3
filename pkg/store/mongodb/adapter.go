// Package mongodb stores snapshots as documents in a MongoDB collection.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/store"
)

// Backend is the backend name reported by the adapter.
const Backend = "mongodb"

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	Collection       string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// snapshotDocument is the stored shape of one snapshot.
type snapshotDocument struct {
	Name      string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	Size      int       `bson:"size"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type collection interface {
	ReplaceOne(ctx context.Context, filter, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	Distinct(ctx context.Context, fieldName string, filter interface{}, opts ...*options.DistinctOptions) ([]interface{}, error)
}

type connection interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
}

// Adapter keeps one document per snapshot, keyed by name.
type Adapter struct {
	conn    connection
	coll    collection
	logger  logger.Logger
	timeout time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	closed  bool
}

// NewAdapter connects to MongoDB and verifies connectivity via ping.
func NewAdapter(ctx context.Context, cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongodb URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("mongodb collection is required")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB snapshot store initialized", "database", cfg.Database, "collection", cfg.Collection)
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	return newAdapter(client, coll, cfg.OperationTimeout, log), nil
}

func newAdapter(conn connection, coll collection, timeout time.Duration, log logger.Logger) *Adapter {
	return &Adapter{
		conn:    conn,
		coll:    coll,
		logger:  log,
		timeout: timeout,
		now:     time.Now,
	}
}

// Backend implements store.SnapshotStore.
func (a *Adapter) Backend() string { return Backend }

// PutSnapshot upserts the document for name.
func (a *Adapter) PutSnapshot(ctx context.Context, name string, data []byte) error {
	if err := a.check(name); err != nil {
		return err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	doc := snapshotDocument{
		Name:      name,
		Data:      data,
		Size:      len(data),
		UpdatedAt: a.now().UTC(),
	}
	_, err := a.coll.ReplaceOne(opCtx, bson.D{{Key: "_id", Value: name}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store snapshot %q: %w", name, err)
	}
	a.logger.Debug("snapshot stored", "name", name, "bytes", len(data))
	return nil
}

// GetSnapshot returns the payload of the document for name.
func (a *Adapter) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	if err := a.check(name); err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	var doc snapshotDocument
	err := a.coll.FindOne(opCtx, bson.D{{Key: "_id", Value: name}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", store.ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %q: %w", name, err)
	}
	return doc.Data, nil
}

// DeleteSnapshot removes the document for name.
func (a *Adapter) DeleteSnapshot(ctx context.Context, name string) error {
	if err := a.check(name); err != nil {
		return err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	if _, err := a.coll.DeleteOne(opCtx, bson.D{{Key: "_id", Value: name}}); err != nil {
		return fmt.Errorf("failed to delete snapshot %q: %w", name, err)
	}
	return nil
}

// ListSnapshots returns the distinct document IDs.
func (a *Adapter) ListSnapshots(ctx context.Context) ([]string, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	ids, err := a.coll.Distinct(opCtx, "_id", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := id.(string); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Ping verifies the primary is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	return a.conn.Ping(ctx, readpref.Primary())
}

// HealthCheck pings the primary within a short timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

// Close disconnects the client. Closing twice is a no-op.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.conn.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

func (a *Adapter) check(name string) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	return store.ValidateName(name)
}

func (a *Adapter) ensureOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return store.ErrClosed
	}
	return nil
}

// withOperationTimeout applies the adapter timeout unless ctx already has a
// deadline.
func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
