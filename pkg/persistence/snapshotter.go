package persistence

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/metrics"
	"github.com/nimburion/docstore/pkg/observability/tracing"
	"github.com/nimburion/docstore/pkg/store"
)

// Snapshotter saves and loads collection snapshots through a SnapshotStore.
type Snapshotter struct {
	store   store.SnapshotStore
	codec   Codec
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Snapshotter.
type Option func(*Snapshotter)

// WithCodec replaces the default BSON codec.
func WithCodec(c Codec) Option {
	return func(s *Snapshotter) { s.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Snapshotter) { s.logger = l }
}

// WithMetrics records snapshot sizes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Snapshotter) { s.metrics = m }
}

// NewSnapshotter creates a Snapshotter writing to st.
func NewSnapshotter(st store.SnapshotStore, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		store:  st,
		codec:  BSONCodec{},
		logger: logger.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying snapshot store.
func (s *Snapshotter) Store() store.SnapshotStore { return s.store }

// Codec returns the codec used for snapshots.
func (s *Snapshotter) Codec() Codec { return s.codec }

// Save encodes records as a snapshot of collection and stores it, replacing
// the previous snapshot.
func (s *Snapshotter) Save(ctx context.Context, collection string, records []document.Record) (err error) {
	ctx, span := tracing.StartSnapshotSpan(ctx, tracing.SpanOperationSnapshotSave, s.store.Backend(), collection)
	defer func() {
		if err != nil {
			tracing.RecordError(span, err)
		} else {
			tracing.RecordSuccess(span)
		}
		span.End()
	}()

	start := s.now()
	payload, err := EncodeBytes(s.codec, Snapshot{
		Collection: collection,
		Version:    FormatVersion,
		CreatedAt:  start,
		Records:    records,
	})
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", collection, err)
	}
	if err := s.store.PutSnapshot(ctx, s.name(collection), payload); err != nil {
		return fmt.Errorf("snapshot %s: %w", collection, err)
	}

	s.metrics.SetSnapshotBytes(collection, len(payload))
	s.logger.WithContext(ctx).Info("snapshot saved",
		"collection", collection,
		"records", len(records),
		"bytes", len(payload),
		"backend", s.store.Backend(),
		"duration", time.Since(start),
	)
	return nil
}

// Load fetches and decodes the snapshot of collection. A missing snapshot
// yields an error wrapping store.ErrSnapshotNotFound.
func (s *Snapshotter) Load(ctx context.Context, collection string) (snap Snapshot, err error) {
	ctx, span := tracing.StartSnapshotSpan(ctx, tracing.SpanOperationSnapshotLoad, s.store.Backend(), collection)
	defer func() {
		if err != nil {
			tracing.RecordError(span, err)
		} else {
			tracing.RecordSuccess(span)
		}
		span.End()
	}()

	start := s.now()
	payload, err := s.store.GetSnapshot(ctx, s.name(collection))
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", collection, err)
	}
	snap, err = s.codec.Decode(bytes.NewReader(payload))
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", collection, err)
	}
	if snap.Collection == "" {
		snap.Collection = collection
	}

	s.metrics.SetSnapshotBytes(collection, len(payload))
	s.logger.WithContext(ctx).Info("snapshot loaded",
		"collection", collection,
		"records", len(snap.Records),
		"bytes", len(payload),
		"backend", s.store.Backend(),
		"duration", time.Since(start),
	)
	return snap, nil
}

// Delete removes the snapshot of collection.
func (s *Snapshotter) Delete(ctx context.Context, collection string) error {
	if err := s.store.DeleteSnapshot(ctx, s.name(collection)); err != nil {
		return fmt.Errorf("snapshot %s: %w", collection, err)
	}
	return nil
}

// List returns the collections that have a snapshot, in lexical order.
func (s *Snapshotter) List(ctx context.Context) ([]string, error) {
	names, err := s.store.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	ext := s.codec.Extension()
	out := make([]string, 0, len(names))
	for _, name := range names {
		if collection, ok := strings.CutSuffix(name, ext); ok && collection != "" {
			out = append(out, collection)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Snapshotter) name(collection string) string {
	return collection + s.codec.Extension()
}
