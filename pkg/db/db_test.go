package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nimburion/docstore/pkg/config"
	"github.com/nimburion/docstore/pkg/cursor"
	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/eventbus"
	"github.com/nimburion/docstore/pkg/events"
	"github.com/nimburion/docstore/pkg/query"
	"github.com/nimburion/docstore/pkg/store"
	"github.com/nimburion/docstore/pkg/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Snapshot.Dir = t.TempDir()
	cfg.Events.Buffer = 0
	return cfg
}

func openTest(t *testing.T, cfg *config.Config, opts ...Option) *DB {
	t.Helper()
	d, err := Open(context.Background(), cfg, nil, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Query.JoinWorkers = 0
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for invalid config")
	}

	cfg = testConfig(t)
	cfg.Snapshot.Backend = "tape"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestCollection_GetOrCreate(t *testing.T) {
	d := openTest(t, testConfig(t))

	a, err := d.Collection("users")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	b, err := d.Collection("users")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	if a != b {
		t.Fatal("Collection() returned a different instance for the same name")
	}
	if _, err := d.Collection("orders"); err != nil {
		t.Fatalf("Collection(orders) error = %v", err)
	}
	if got := strings.Join(d.Names(), ","); got != "orders,users" {
		t.Fatalf("Names() = %s", got)
	}
	if _, err := d.Collection("../etc"); !errors.Is(err, store.ErrInvalidName) {
		t.Fatalf("Collection(../etc) error = %v, want ErrInvalidName", err)
	}
	if _, err := d.Lookup("missing"); !errors.Is(err, ErrNoCollection) {
		t.Fatalf("Lookup(missing) error = %v, want ErrNoCollection", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first := openTest(t, cfg)
	users, _ := first.Collection("users")
	if _, err := users.Insert(ctx, testutil.Users()...); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	orders, _ := first.Collection("orders")
	if _, err := orders.Insert(ctx, testutil.Orders()...); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := first.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second := openTest(t, cfg)
	names, err := second.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if strings.Join(names, ",") != "orders,users" {
		t.Fatalf("Snapshots() = %v", names)
	}
	if err := second.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	loadedUsers, err := second.Lookup("users")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	loadedOrders, _ := second.Lookup("orders")

	got, err := loadedOrders.Find(query.Field("total", query.Gt(5))).Join(cursor.Join{
		Cursor:       loadedUsers.Find(query.Query{}),
		LocalField:   "user_id",
		ForeignField: "_id",
	}).All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d orders, want 3", len(got))
	}
	joined, ok := got[1]["user_id"].(document.Record)
	if !ok || joined["name"] != "linus" {
		t.Fatalf("joined user = %#v", got[1]["user_id"])
	}
}

func TestLoad_Missing(t *testing.T) {
	d := openTest(t, testConfig(t))
	if _, err := d.Load(context.Background(), "ghost"); !errors.Is(err, store.ErrSnapshotNotFound) {
		t.Fatalf("Load() error = %v, want ErrSnapshotNotFound", err)
	}
	if err := d.Save(context.Background(), "ghost-never-created"); !errors.Is(err, ErrNoCollection) {
		t.Fatalf("Save() error = %v, want ErrNoCollection", err)
	}
}

func TestDrop(t *testing.T) {
	d := openTest(t, testConfig(t))
	ctx := context.Background()

	c, _ := d.Collection("tmp")
	if _, err := c.Insert(ctx, document.Record{"_id": "a"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := d.Save(ctx, "tmp"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := d.Drop(ctx, "tmp"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if len(d.Names()) != 0 {
		t.Fatalf("Names() = %v after drop", d.Names())
	}
	if names, _ := d.Snapshots(ctx); len(names) != 0 {
		t.Fatalf("snapshot survived drop: %v", names)
	}
	if err := d.Drop(ctx, "tmp"); err != nil {
		t.Fatalf("Drop() twice error = %v", err)
	}
}

func TestEvents(t *testing.T) {
	producer := eventbus.NewMemoryProducer()
	bridge, err := events.NewEventBusEmitter(producer, events.EventBusConfig{})
	if err != nil {
		t.Fatalf("NewEventBusEmitter() error = %v", err)
	}
	d := openTest(t, testConfig(t), WithEmitter(bridge))
	ctx := context.Background()

	var mu sync.Mutex
	var names []events.Name
	sub, err := d.Subscribe(events.Wildcard, func(e events.Event) {
		mu.Lock()
		names = append(names, e.Name)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	c, _ := d.Collection("users")
	if _, err := c.Insert(ctx, testutil.Users()...); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := c.Remove(ctx, query.Parse(query.Filter{"name": "ada"})); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := d.Save(ctx, "users"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := d.Load(ctx, "users"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	mu.Lock()
	got := make([]string, len(names))
	for i, n := range names {
		got[i] = string(n)
	}
	mu.Unlock()
	if strings.Join(got, ",") != "insert,remove,serialize,deserialize" {
		t.Fatalf("unexpected events: %v", got)
	}
	if msgs := producer.Published("docstore.users"); len(msgs) != 4 {
		t.Fatalf("bridge published %d messages, want 4", len(msgs))
	}
}

func TestEventsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.Enabled = false
	d := openTest(t, cfg)
	if _, err := d.Subscribe(events.Wildcard, func(events.Event) {}); !errors.Is(err, ErrEventsDisabled) {
		t.Fatalf("Subscribe() error = %v, want ErrEventsDisabled", err)
	}
}

func TestMetricsExposed(t *testing.T) {
	d := openTest(t, testConfig(t))
	ctx := context.Background()
	c, _ := d.Collection("users")
	if _, err := c.Insert(ctx, testutil.Users()...); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := c.Find(query.Query{}).Count(ctx); err != nil {
		t.Fatalf("Count() error = %v", err)
	}

	rec := httptest.NewRecorder()
	d.Registry().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"docstore_mutations_total", "docstore_cursor_executions_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output lacks %s", want)
		}
	}
}

func TestHealth(t *testing.T) {
	d := openTest(t, testConfig(t))
	res := d.Health(context.Background())
	if !res.IsHealthy() {
		t.Fatalf("Health() = %+v", res)
	}
	names := make([]string, len(res.Checks))
	for i, c := range res.Checks {
		names[i] = c.Name
	}
	if got := strings.Join(names, ","); got != "join_pool,snapshot_breaker,snapshot_store" {
		t.Fatalf("checks = %s", got)
	}
	if err := d.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	d, err := Open(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() twice error = %v", err)
	}
	if _, err := d.Collection("users"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Collection() after close error = %v, want ErrClosed", err)
	}
}
