// Package db wires collections to the configured snapshot store, event bus,
// metrics and join worker pool.
package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/nimburion/docstore/pkg/collection"
	"github.com/nimburion/docstore/pkg/config"
	"github.com/nimburion/docstore/pkg/events"
	"github.com/nimburion/docstore/pkg/health"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/metrics"
	"github.com/nimburion/docstore/pkg/persistence"
	"github.com/nimburion/docstore/pkg/store"
	"github.com/nimburion/docstore/pkg/store/factory"
)

var (
	ErrClosed         = errors.New("db: closed")
	ErrNoCollection   = errors.New("db: collection does not exist")
	ErrEventsDisabled = errors.New("db: events are disabled")
)

// Option configures Open.
type Option func(*options)

type options struct {
	store    store.SnapshotStore
	registry *metrics.Registry
	emitters []events.Emitter
}

// WithSnapshotStore uses st instead of building the configured backend.
func WithSnapshotStore(st store.SnapshotStore) Option {
	return func(o *options) { o.store = st }
}

// WithRegistry registers the store metrics with reg.
func WithRegistry(reg *metrics.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithEmitter adds an event sink, for example an events.EventBusEmitter.
func WithEmitter(e events.Emitter) Option {
	return func(o *options) {
		if e != nil {
			o.emitters = append(o.emitters, e)
		}
	}
}

// DB is a set of named collections sharing one snapshot store.
type DB struct {
	cfg         *config.Config
	log         logger.Logger
	store       store.SnapshotStore
	snapshotter *persistence.Snapshotter
	bus         *events.Bus
	emitter     events.Emitter
	registry    *metrics.Registry
	metrics     *metrics.Metrics
	pool        *ants.Pool
	health      *health.Registry

	mu          sync.RWMutex
	collections map[string]*collection.Collection
	closed      bool
}

// Open builds a DB from cfg. A nil cfg uses config.DefaultConfig.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	d := &DB{
		cfg:         cfg,
		log:         log,
		collections: make(map[string]*collection.Collection),
	}

	if cfg.Metrics.Enabled {
		d.registry = o.registry
		if d.registry == nil {
			d.registry = metrics.NewRegistry()
		}
		d.metrics = metrics.New(d.registry.Registerer(), cfg.Metrics.Namespace)
	}

	d.store = o.store
	if d.store == nil {
		st, err := factory.NewSnapshotStore(ctx, cfg.Snapshot, log)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		d.store = st
	}
	d.snapshotter = persistence.NewSnapshotter(d.store,
		persistence.WithLogger(log),
		persistence.WithMetrics(d.metrics),
	)

	pool, err := ants.NewPool(cfg.Query.JoinWorkers, ants.WithNonblocking(true))
	if err != nil {
		_ = d.store.Close()
		return nil, fmt.Errorf("create join pool: %w", err)
	}
	d.pool = pool

	d.health = health.NewRegistry()
	d.health.Register(health.NewAdapterChecker("snapshot_store", d.store, cfg.Snapshot.OperationTimeout))
	d.health.Register(health.NewPoolChecker("join_pool", pool))
	if g, ok := d.store.(*store.Guarded); ok {
		d.health.Register(health.NewBreakerChecker("snapshot_breaker", g.Breaker()))
	}

	sinks := events.Fanout{}
	if cfg.Events.Enabled {
		d.bus = events.NewBus(events.WithBuffer(cfg.Events.Buffer), events.WithBusLogger(log))
		sinks = append(sinks, d.bus)
	}
	sinks = append(sinks, o.emitters...)
	d.emitter = sinks

	log.Info("docstore opened",
		"snapshot_backend", d.store.Backend(),
		"join_workers", cfg.Query.JoinWorkers,
		"events", cfg.Events.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)
	return d, nil
}

// Collection returns the collection called name, creating it with opts when
// it does not exist yet. opts are ignored for existing collections.
func (d *DB) Collection(name string, opts ...collection.Option) (*collection.Collection, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid collection name: %w", err)
	}
	d.mu.RLock()
	c, ok := d.collections[name]
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return c, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if c, ok := d.collections[name]; ok {
		return c, nil
	}
	base := []collection.Option{
		collection.WithEmitter(d.emitter),
		collection.WithLogger(d.log),
		collection.WithMetrics(d.metrics),
		collection.WithPool(d.pool),
		collection.WithMaxJoinDepth(d.cfg.Query.MaxJoinDepth),
		collection.WithCodec(d.snapshotter.Codec()),
	}
	c = collection.New(name, append(base, opts...)...)
	d.collections[name] = c
	return c, nil
}

// Lookup returns an existing collection.
func (d *DB) Lookup(name string) (*collection.Collection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCollection, name)
	}
	return c, nil
}

// Names returns the collection names in lexical order.
func (d *DB) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.collections))
	for name := range d.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Drop removes the collection and its snapshot.
func (d *DB) Drop(ctx context.Context, name string) error {
	d.mu.Lock()
	delete(d.collections, name)
	d.mu.Unlock()
	if err := d.snapshotter.Delete(ctx, name); err != nil && !errors.Is(err, store.ErrSnapshotNotFound) {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	d.log.Info("collection dropped", "collection", name)
	return nil
}

// Save writes a snapshot of the named collection.
func (d *DB) Save(ctx context.Context, name string) error {
	c, err := d.Lookup(name)
	if err != nil {
		return err
	}
	records := c.Records()
	if err := d.snapshotter.Save(ctx, name, records); err != nil {
		d.emit(ctx, events.Failure(name, err))
		return err
	}
	d.emit(ctx, events.Event{Name: events.Serialize, Collection: name, Count: len(records)})
	return nil
}

// SaveAll saves every collection and reports every failure.
func (d *DB) SaveAll(ctx context.Context) error {
	var errs []error
	for _, name := range d.Names() {
		if err := d.Save(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Load replaces the named collection with its stored snapshot, creating the
// collection when needed.
func (d *DB) Load(ctx context.Context, name string, opts ...collection.Option) (*collection.Collection, error) {
	c, err := d.Collection(name, opts...)
	if err != nil {
		return nil, err
	}
	snap, err := d.snapshotter.Load(ctx, name)
	if err != nil {
		d.emit(ctx, events.Failure(name, err))
		return nil, err
	}
	if err := c.Restore(ctx, snap); err != nil {
		return nil, err
	}
	d.emit(ctx, events.Event{Name: events.Deserialize, Collection: name, Count: len(snap.Records)})
	return c, nil
}

// LoadAll loads every stored snapshot.
func (d *DB) LoadAll(ctx context.Context) error {
	names, err := d.snapshotter.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if _, err := d.Load(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Snapshots lists the collections that have a stored snapshot.
func (d *DB) Snapshots(ctx context.Context) ([]string, error) {
	return d.snapshotter.List(ctx)
}

// Subscribe registers handler on the in-process event bus. name is an event
// name or events.Wildcard.
func (d *DB) Subscribe(name string, handler events.Handler) (events.Subscription, error) {
	if d.bus == nil {
		return nil, ErrEventsDisabled
	}
	return d.bus.Subscribe(name, handler), nil
}

// Registry returns the metrics registry, or nil when metrics are disabled.
func (d *DB) Registry() *metrics.Registry { return d.registry }

// Store returns the snapshot store.
func (d *DB) Store() store.SnapshotStore { return d.store }

// HealthCheck checks the snapshot store.
func (d *DB) HealthCheck(ctx context.Context) error {
	return d.store.HealthCheck(ctx)
}

// Health runs every registered component check.
func (d *DB) Health(ctx context.Context) health.AggregatedResult {
	return d.health.Check(ctx)
}

// HealthRegistry returns the registry so callers can add their own checks.
func (d *DB) HealthRegistry() *health.Registry { return d.health }

// Close stops the event bus, releases the join pool and closes the store.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	var errs []error
	if d.bus != nil {
		if err := d.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.pool.Release()
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close snapshot store: %w", err))
	}
	d.log.Info("docstore closed")
	return errors.Join(errs...)
}

func (d *DB) emit(ctx context.Context, e events.Event) {
	if err := d.emitter.Emit(ctx, e); err != nil {
		d.log.Warn("event delivery failed", "event", string(e.Name), "collection", e.Collection, "error", err)
	}
}
