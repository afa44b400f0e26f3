// Package cursor executes queries against a record source: scanning with
// pagination, resolving joins against other cursors and projecting results.
package cursor

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/metrics"
	"github.com/nimburion/docstore/pkg/observability/tracing"
	"github.com/nimburion/docstore/pkg/projection"
	"github.com/nimburion/docstore/pkg/query"
)

// DefaultMaxJoinDepth bounds how deep joined cursors may nest.
const DefaultMaxJoinDepth = 8

var (
	// ErrNilSource is returned when executing a cursor without a source.
	ErrNilSource = errors.New("cursor: nil source")
	// ErrInvalidJoin is returned for a join missing its cursor or fields.
	ErrInvalidJoin = errors.New("cursor: invalid join")
	// ErrJoinDepth is returned when joined cursors nest deeper than the limit.
	ErrJoinDepth = errors.New("cursor: join depth exceeded")
)

// Source provides the ordered records a cursor scans. Implementations must
// not mutate the returned slice while a cursor reads it.
type Source interface {
	Records() []document.Record
}

// Records adapts a plain slice to Source.
type Records []document.Record

func (r Records) Records() []document.Record { return r }

// Pool runs join tasks. *ants.Pool satisfies it.
type Pool interface {
	Submit(task func()) error
}

// Option configures a Cursor.
type Option func(*Cursor)

// WithName labels the cursor in logs, metrics and spans.
func WithName(name string) Option {
	return func(c *Cursor) { c.name = name }
}

// WithLogger sets the logger for execution diagnostics.
func WithLogger(log logger.Logger) Option {
	return func(c *Cursor) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics records scan and join measurements on m. A nil m disables them.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cursor) { c.metrics = m }
}

// WithPool sets the worker pool used to resolve joins in parallel.
func WithPool(p Pool) Option {
	return func(c *Cursor) { c.pool = p }
}

// WithMaxJoinDepth overrides DefaultMaxJoinDepth. Values below one are ignored.
func WithMaxJoinDepth(depth int) Option {
	return func(c *Cursor) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// Cursor is a configurable, re-executable query over a Source. Configuration
// methods return the cursor for chaining and discard earlier results. A
// Cursor must not be used from several goroutines at once.
type Cursor struct {
	source     Source
	name       string
	query      query.Query
	skip       int
	limit      int
	reverse    bool
	joins      []Join
	projection projection.Spec

	log      logger.Logger
	metrics  *metrics.Metrics
	pool     Pool
	maxDepth int

	executed bool
	raw      []document.Record
	results  []document.Record
	visited  int
}

// New creates a cursor over source matching every record.
func New(source Source, opts ...Option) *Cursor {
	c := &Cursor{
		source:   source,
		limit:    Unlimited,
		log:      logger.NewNop(),
		maxDepth: DefaultMaxJoinDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cursor) reset() *Cursor {
	c.executed = false
	c.raw = nil
	c.results = nil
	c.visited = 0
	return c
}

// Where replaces the cursor's query.
func (c *Cursor) Where(q query.Query) *Cursor {
	c.query = q
	return c.reset()
}

// Skip discards the first n matches. Negative values count as zero.
func (c *Cursor) Skip(n int) *Cursor {
	if n < 0 {
		n = 0
	}
	c.skip = n
	return c.reset()
}

// Limit caps the number of matches. A negative n removes the cap.
func (c *Cursor) Limit(n int) *Cursor {
	if n < 0 {
		n = Unlimited
	}
	c.limit = n
	return c.reset()
}

// Reverse sets the scan direction.
func (c *Cursor) Reverse(reverse bool) *Cursor {
	c.reverse = reverse
	return c.reset()
}

// Join adds a join resolved after the scan.
func (c *Cursor) Join(j Join) *Cursor {
	c.joins = append(c.joins, j)
	return c.reset()
}

// Project sets the projection applied to results.
func (c *Cursor) Project(spec projection.Spec) *Cursor {
	c.projection = spec
	return c.reset()
}

// Name returns the cursor's label.
func (c *Cursor) Name() string { return c.name }

// Query returns the cursor's query.
func (c *Cursor) Query() query.Query { return c.query }

// Executed reports whether results are available without re-running.
func (c *Cursor) Executed() bool { return c.executed }

// Visited returns how many records the last execution matched against.
func (c *Cursor) Visited() int { return c.visited }

// Clone returns an unexecuted copy with the same configuration.
func (c *Cursor) Clone() *Cursor {
	return &Cursor{
		source:     c.source,
		name:       c.name,
		query:      c.query,
		skip:       c.skip,
		limit:      c.limit,
		reverse:    c.reverse,
		joins:      append([]Join(nil), c.joins...),
		projection: c.projection,
		log:        c.log,
		metrics:    c.metrics,
		pool:       c.pool,
		maxDepth:   c.maxDepth,
	}
}

// Exec runs the pipeline unless the cursor already holds results.
func (c *Cursor) Exec(ctx context.Context) error {
	if c.executed {
		return nil
	}
	return c.execute(ctx, 0)
}

func (c *Cursor) execute(ctx context.Context, depth int) error {
	if c.source == nil {
		return ErrNilSource
	}
	if len(c.joins) > 0 && depth >= c.maxDepth {
		return ErrJoinDepth
	}

	ctx, span := tracing.StartQuerySpan(ctx, tracing.SpanOperationQueryExec,
		tracing.WithCollection(c.name),
		tracing.WithFilter(c.query.String()),
		tracing.WithJoinCount(len(c.joins)),
		tracing.WithDepth(depth),
	)
	defer span.End()
	start := time.Now()

	scan := Scan(c.query, c.source.Records(), ScanOptions{
		Skip:    c.skip,
		Limit:   c.limit,
		Reverse: c.reverse,
	})

	raw := make([]document.Record, len(scan.Records))
	for i, r := range scan.Records {
		raw[i] = document.Clone(r)
	}

	if len(c.joins) > 0 && len(raw) > 0 {
		joinStart := time.Now()
		err := c.resolveJoins(ctx, raw, depth)
		c.metrics.ObserveJoin(time.Since(joinStart))
		if err != nil {
			tracing.RecordError(span, err)
			c.log.WithContext(ctx).Error("join resolution failed", "collection", c.name, "error", err)
			return err
		}
	}

	c.raw = raw
	c.results = c.projection.ApplyAll(raw)
	c.visited = scan.Visited
	c.executed = true

	elapsed := time.Since(start)
	c.metrics.ObserveCursor(c.name, scan.Visited, elapsed)
	tracing.RecordSuccess(span)
	c.log.WithContext(ctx).Debug("cursor executed",
		"collection", c.name,
		"matched", len(raw),
		"visited", scan.Visited,
		"joins", len(c.joins),
		"depth", depth,
		"duration", elapsed,
	)
	return nil
}

// All returns copies of the results, executing first if needed.
func (c *Cursor) All(ctx context.Context) ([]document.Record, error) {
	if err := c.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]document.Record, len(c.results))
	for i, r := range c.results {
		out[i] = document.Clone(r)
	}
	return out, nil
}

// At returns a copy of the i-th result. ok is false when i is out of range.
func (c *Cursor) At(ctx context.Context, i int) (document.Record, bool, error) {
	if err := c.Exec(ctx); err != nil {
		return nil, false, err
	}
	if i < 0 || i >= len(c.results) {
		return nil, false, nil
	}
	return document.Clone(c.results[i]), true, nil
}

// First returns the first result. ok is false when there is none.
func (c *Cursor) First(ctx context.Context) (document.Record, bool, error) {
	return c.At(ctx, 0)
}

// Each calls fn for every result in order and stops at the first error.
func (c *Cursor) Each(ctx context.Context, fn func(i int, r document.Record) error) error {
	if err := c.Exec(ctx); err != nil {
		return err
	}
	for i, r := range c.results {
		if err := fn(i, document.Clone(r)); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of results.
func (c *Cursor) Count(ctx context.Context) (int, error) {
	if err := c.Exec(ctx); err != nil {
		return 0, err
	}
	return len(c.results), nil
}
