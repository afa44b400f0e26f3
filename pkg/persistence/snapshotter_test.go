package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/metrics"
	"github.com/nimburion/docstore/pkg/store"
	"github.com/nimburion/docstore/pkg/store/file"
)

func newFileStore(t *testing.T) *file.Adapter {
	t.Helper()
	st, err := file.NewAdapter(file.Config{Dir: filepath.Join(t.TempDir(), "snapshots")}, logger.NewNop())
	if err != nil {
		t.Fatalf("file.NewAdapter() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestSnapshotter_SaveLoad(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s := NewSnapshotter(newFileStore(t), WithMetrics(metrics.New(reg, "test")), WithLogger(logger.NewNop()))

	records := []document.Record{
		{"_id": "u1", "name": "ada", "tags": []any{"x"}},
		{"_id": "u2", "name": "linus"},
	}
	if err := s.Save(ctx, "users", records); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	snap, err := s.Load(ctx, "users")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.Collection != "users" {
		t.Fatalf("Collection = %q", snap.Collection)
	}
	if len(snap.Records) != 2 || !document.Equal(snap.Records[0], records[0]) || !document.Equal(snap.Records[1], records[1]) {
		t.Fatalf("records mismatch: %#v", snap.Records)
	}

	count, err := testutil.GatherAndCount(reg, "test_snapshot_bytes")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one snapshot_bytes series, got %d", count)
	}
}

func TestSnapshotter_LoadMissing(t *testing.T) {
	s := NewSnapshotter(newFileStore(t))
	_, err := s.Load(context.Background(), "nope")
	if !errors.Is(err, store.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestSnapshotter_LoadCorrupt(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)
	if err := st.PutSnapshot(ctx, "broken"+Extension, []byte("garbage")); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	_, err := NewSnapshotter(st).Load(ctx, "broken")
	if !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestSnapshotter_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)
	s := NewSnapshotter(st)

	for _, name := range []string{"orders", "users"} {
		if err := s.Save(ctx, name, nil); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
	}
	if err := st.PutSnapshot(ctx, "notes.txt", []byte("x")); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !reflect.DeepEqual(names, []string{"orders", "users"}) {
		t.Fatalf("List() = %v", names)
	}

	if err := s.Delete(ctx, "orders"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	names, _ = s.List(ctx)
	if !reflect.DeepEqual(names, []string{"users"}) {
		t.Fatalf("List() after delete = %v", names)
	}
}

func TestSnapshotter_Spans(t *testing.T) {
	recorder := installRecorder(t)
	ctx := context.Background()
	s := NewSnapshotter(newFileStore(t))

	if err := s.Save(ctx, "users", []document.Record{{"_id": "a"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := s.Load(ctx, "missing"); err == nil {
		t.Fatal("expected load error")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "SNAPSHOT snapshot.save users" || spans[0].Status().Code != codes.Ok {
		t.Errorf("unexpected save span %q status %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "SNAPSHOT snapshot.load missing" || spans[1].Status().Code != codes.Error {
		t.Errorf("unexpected load span %q status %v", spans[1].Name(), spans[1].Status())
	}
}
