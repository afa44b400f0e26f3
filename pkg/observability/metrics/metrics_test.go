package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_Handler(t *testing.T) {
	registry := NewRegistry()
	m := New(registry.Registerer(), "")
	m.ObserveCursor("users", 3, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"docstore_cursor_executions_total",
		"docstore_records_scanned_total",
		"docstore_cursor_duration_seconds",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "custom_total", Help: "custom"})

	if err := registry.Register(c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register(c); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if !registry.Unregister(c) {
		t.Fatal("Unregister() = false")
	}
}

func TestMetrics_Values(t *testing.T) {
	registry := NewRegistry()
	m := New(registry.Registerer(), "test")

	m.ObserveCursor("users", 10, time.Millisecond)
	m.ObserveCursor("users", 5, time.Millisecond)
	m.AddMutations("users", "insert", 3)
	m.AddMutations("users", "insert", 0)
	m.SetSnapshotBytes("users", 512)
	m.ObserveJoin(time.Millisecond)

	if got := testutil.ToFloat64(m.cursorExecutions.WithLabelValues("users")); got != 2 {
		t.Errorf("cursor executions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.recordsScanned.WithLabelValues("users")); got != 15 {
		t.Errorf("records scanned = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("users", "insert")); got != 3 {
		t.Errorf("mutations = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.snapshotBytes.WithLabelValues("users")); got != 512 {
		t.Errorf("snapshot bytes = %v, want 512", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCursor("x", 1, time.Second)
	m.ObserveJoin(time.Second)
	m.AddMutations("x", "insert", 1)
	m.SetSnapshotBytes("x", 1)
}
