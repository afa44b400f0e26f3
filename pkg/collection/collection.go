// Package collection holds a named, ordered set of records with primary key
// enforcement, optional schema validation and change events.
package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimburion/docstore/pkg/cursor"
	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/events"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/metrics"
	"github.com/nimburion/docstore/pkg/persistence"
	"github.com/nimburion/docstore/pkg/query"
	"github.com/nimburion/docstore/pkg/schema"
)

var (
	// ErrDuplicateID is returned when an inserted _id is already taken.
	ErrDuplicateID = errors.New("collection: duplicate _id")
	// ErrNotFound is returned when no record has the requested _id.
	ErrNotFound = errors.New("collection: record not found")
	// ErrInvalidID is returned for an _id that is a record, list or opaque value.
	ErrInvalidID = errors.New("collection: _id must be a scalar")
	// ErrImmutableID is returned when an update tries to change _id.
	ErrImmutableID = errors.New("collection: _id cannot be updated")
)

// Mutation labels used for metrics.
const (
	opInsert = "insert"
	opUpdate = "update"
	opRemove = "remove"
)

// Option configures a Collection.
type Option func(*Collection)

// WithValidator validates every inserted and updated record against v.
func WithValidator(v *schema.Validator) Option {
	return func(c *Collection) { c.validator = v }
}

func WithEmitter(e events.Emitter) Option {
	return func(c *Collection) {
		if e != nil {
			c.emitter = e
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Collection) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collection) { c.metrics = m }
}

// WithPool sets the worker pool cursors of this collection use for joins.
func WithPool(p cursor.Pool) Option {
	return func(c *Collection) { c.pool = p }
}

// WithMaxJoinDepth bounds join nesting for cursors of this collection.
func WithMaxJoinDepth(depth int) Option {
	return func(c *Collection) { c.maxJoinDepth = depth }
}

// WithIDGenerator replaces the generator of missing _id values.
func WithIDGenerator(fn func() string) Option {
	return func(c *Collection) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithCodec sets the codec used by Serialize and Deserialize.
func WithCodec(codec persistence.Codec) Option {
	return func(c *Collection) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// Collection is safe for concurrent use. Stored records are never modified
// in place, so cursors keep reading a consistent slice while writers run.
type Collection struct {
	name string

	mu      sync.RWMutex
	records []document.Record
	index   map[string]int

	validator    *schema.Validator
	emitter      events.Emitter
	log          logger.Logger
	metrics      *metrics.Metrics
	pool         cursor.Pool
	maxJoinDepth int
	newID        func() string
	codec        persistence.Codec
	now          func() time.Time
}

// New creates an empty collection.
func New(name string, opts ...Option) *Collection {
	c := &Collection{
		name:    name,
		index:   make(map[string]int),
		emitter: events.Discard,
		log:     logger.NewNop(),
		newID:   uuid.NewString,
		codec:   persistence.BSONCodec{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("collection", name)
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Len returns the number of stored records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Records returns the stored records in insertion order. The slice is a
// snapshot; the records must be treated as read-only.
func (c *Collection) Records() []document.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]document.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Get returns a copy of the record whose _id equals id.
func (c *Collection) Get(id any) (document.Record, error) {
	key, ok := document.Key(document.Normalize(id))
	if !ok {
		return nil, ErrInvalidID
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	return document.Clone(c.records[i]), nil
}

// Find returns a cursor over the collection filtered by q.
func (c *Collection) Find(q query.Query) *cursor.Cursor {
	opts := []cursor.Option{
		cursor.WithName(c.name),
		cursor.WithLogger(c.log),
		cursor.WithMetrics(c.metrics),
	}
	if c.pool != nil {
		opts = append(opts, cursor.WithPool(c.pool))
	}
	if c.maxJoinDepth > 0 {
		opts = append(opts, cursor.WithMaxJoinDepth(c.maxJoinDepth))
	}
	return cursor.New(c, opts...).Where(q)
}

// FindOne returns the first record matching q. ok is false when none does.
func (c *Collection) FindOne(ctx context.Context, q query.Query) (document.Record, bool, error) {
	return c.Find(q).Limit(1).First(ctx)
}

// Insert stores records in order and returns the stored copies with their
// _id. Records without _id get a generated one. Either every record is
// stored or none is.
func (c *Collection) Insert(ctx context.Context, records ...document.Record) ([]document.Record, error) {
	if len(records) == 0 {
		return []document.Record{}, nil
	}
	prepared := make([]document.Record, len(records))
	keys := make([]string, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		rec := document.NormalizeRecord(r)
		if _, ok := rec[document.IDField]; !ok {
			rec[document.IDField] = c.newID()
		}
		key, ok := document.Key(rec[document.IDField])
		if !ok {
			return nil, c.fail(ctx, "insert rejected", fmt.Errorf("record %d: %w", i, ErrInvalidID))
		}
		if _, dup := seen[key]; dup {
			return nil, c.fail(ctx, "insert rejected", fmt.Errorf("%w: %v repeated in batch", ErrDuplicateID, rec[document.IDField]))
		}
		seen[key] = struct{}{}
		keys[i] = key
		prepared[i] = rec
	}
	prepared, err := c.validate(prepared)
	if err != nil {
		return nil, c.fail(ctx, "insert rejected", err)
	}

	c.mu.Lock()
	for i, key := range keys {
		if _, dup := c.index[key]; dup {
			c.mu.Unlock()
			return nil, c.fail(ctx, "insert rejected", fmt.Errorf("%w: %v", ErrDuplicateID, prepared[i][document.IDField]))
		}
	}
	next := make([]document.Record, len(c.records), len(c.records)+len(prepared))
	copy(next, c.records)
	for i, r := range prepared {
		c.index[keys[i]] = len(next)
		next = append(next, r)
	}
	c.records = next
	c.mu.Unlock()

	out := cloneAll(prepared)
	c.metrics.AddMutations(c.name, opInsert, len(out))
	c.log.WithContext(ctx).Debug("records inserted", "count", len(out))
	c.emit(ctx, events.New(events.Insert, c.name, cloneAll(out)...))
	return out, nil
}

// Update merges patch into the top level of every record matching q and
// returns how many records changed. The _id field cannot be changed.
func (c *Collection) Update(ctx context.Context, q query.Query, patch document.Record) (int, error) {
	if _, ok := patch[document.IDField]; ok {
		return 0, c.fail(ctx, "update rejected", ErrImmutableID)
	}
	patch = document.NormalizeRecord(patch)

	c.mu.Lock()
	var positions []int
	var updated []document.Record
	for i, r := range c.records {
		if !q.Match(r) {
			continue
		}
		merged := document.Clone(r)
		for k, v := range patch {
			merged[k] = document.CloneValue(v)
		}
		positions = append(positions, i)
		updated = append(updated, merged)
	}
	if len(updated) == 0 {
		c.mu.Unlock()
		return 0, nil
	}
	validated, err := c.validate(updated)
	if err != nil {
		c.mu.Unlock()
		return 0, c.fail(ctx, "update rejected", err)
	}
	next := make([]document.Record, len(c.records))
	copy(next, c.records)
	for j, pos := range positions {
		next[pos] = validated[j]
	}
	c.records = next
	c.mu.Unlock()

	c.metrics.AddMutations(c.name, opUpdate, len(validated))
	c.log.WithContext(ctx).Debug("records updated", "count", len(validated))
	c.emit(ctx, events.New(events.Update, c.name, cloneAll(validated)...))
	return len(validated), nil
}

// Remove deletes every record matching q and returns how many were removed.
func (c *Collection) Remove(ctx context.Context, q query.Query) (int, error) {
	c.mu.Lock()
	kept := make([]document.Record, 0, len(c.records))
	var removed []document.Record
	for _, r := range c.records {
		if q.Match(r) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	if len(removed) == 0 {
		c.mu.Unlock()
		return 0, nil
	}
	c.replace(kept)
	c.mu.Unlock()

	c.metrics.AddMutations(c.name, opRemove, len(removed))
	c.log.WithContext(ctx).Debug("records removed", "count", len(removed))
	c.emit(ctx, events.New(events.Remove, c.name, cloneAll(removed)...))
	return len(removed), nil
}

// Serialize writes a snapshot of the collection to w.
func (c *Collection) Serialize(ctx context.Context, w io.Writer) error {
	snap := c.Snapshot()
	if err := c.codec.Encode(w, snap); err != nil {
		return c.fail(ctx, "serialize failed", err)
	}
	c.log.WithContext(ctx).Debug("collection serialized", "count", len(snap.Records))
	c.emit(ctx, events.Event{Name: events.Serialize, Collection: c.name, Count: len(snap.Records)})
	return nil
}

// Deserialize replaces the collection content with the snapshot read from r.
func (c *Collection) Deserialize(ctx context.Context, r io.Reader) error {
	snap, err := c.codec.Decode(r)
	if err != nil {
		return c.fail(ctx, "deserialize failed", err)
	}
	if err := c.Restore(ctx, snap); err != nil {
		return err
	}
	c.emit(ctx, events.Event{Name: events.Deserialize, Collection: c.name, Count: len(snap.Records)})
	return nil
}

// Snapshot returns the current content as a persistence snapshot.
func (c *Collection) Snapshot() persistence.Snapshot {
	return persistence.Snapshot{
		Collection: c.name,
		Version:    persistence.FormatVersion,
		CreatedAt:  c.now().UTC(),
		Records:    c.Records(),
	}
}

// Restore replaces the collection content with the records of snap. Records
// are validated and checked for duplicate keys before anything changes.
func (c *Collection) Restore(ctx context.Context, snap persistence.Snapshot) error {
	records := make([]document.Record, len(snap.Records))
	for i, r := range snap.Records {
		records[i] = document.NormalizeRecord(r)
	}
	records, err := c.validate(records)
	if err != nil {
		return c.fail(ctx, "restore rejected", err)
	}
	index, err := buildIndex(records)
	if err != nil {
		return c.fail(ctx, "restore rejected", err)
	}

	c.mu.Lock()
	c.records = records
	c.index = index
	c.mu.Unlock()
	c.log.WithContext(ctx).Debug("collection restored", "count", len(records))
	return nil
}

// replace swaps in records and rebuilds the key index. Callers hold mu and
// pass records that already passed key checks.
func (c *Collection) replace(records []document.Record) {
	index := make(map[string]int, len(records))
	for i, r := range records {
		if key, ok := document.Key(r[document.IDField]); ok {
			index[key] = i
		}
	}
	c.records = records
	c.index = index
}

func buildIndex(records []document.Record) (map[string]int, error) {
	index := make(map[string]int, len(records))
	for i, r := range records {
		id, ok := r[document.IDField]
		if !ok {
			return nil, fmt.Errorf("record %d: missing _id", i)
		}
		key, ok := document.Key(id)
		if !ok {
			return nil, fmt.Errorf("record %d: %w", i, ErrInvalidID)
		}
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, id)
		}
		index[key] = i
	}
	return index, nil
}

func (c *Collection) validate(records []document.Record) ([]document.Record, error) {
	if c.validator == nil {
		return records, nil
	}
	out, err := c.validator.Validate(records)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fail logs err, publishes an error event and returns err.
func (c *Collection) fail(ctx context.Context, msg string, err error) error {
	c.log.WithContext(ctx).Warn(msg, "error", err)
	c.emit(ctx, events.Failure(c.name, err))
	return err
}

func (c *Collection) emit(ctx context.Context, e events.Event) {
	if err := c.emitter.Emit(ctx, e); err != nil {
		c.log.WithContext(ctx).Warn("event delivery failed", "event", string(e.Name), "error", err)
	}
}

func cloneAll(records []document.Record) []document.Record {
	out := make([]document.Record, len(records))
	for i, r := range records {
		out[i] = document.Clone(r)
	}
	return out
}
