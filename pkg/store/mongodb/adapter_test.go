package mongodb

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/store"
)

type mockLogger struct{}

func (m *mockLogger) Debug(string, ...any)                      {}
func (m *mockLogger) Info(string, ...any)                       {}
func (m *mockLogger) Warn(string, ...any)                       {}
func (m *mockLogger) Error(string, ...any)                      {}
func (m *mockLogger) With(...any) logger.Logger                 { return m }
func (m *mockLogger) WithContext(context.Context) logger.Logger { return m }

type fakeConnection struct {
	pingErr     error
	disconnects int
}

func (f *fakeConnection) Ping(context.Context, *readpref.ReadPref) error { return f.pingErr }

func (f *fakeConnection) Disconnect(context.Context) error {
	f.disconnects++
	return nil
}

// fakeCollection stores snapshot documents by _id.
type fakeCollection struct {
	docs     map[string]snapshotDocument
	upserted bool
	findErr  error
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: map[string]snapshotDocument{}}
}

func idOf(filter interface{}) string {
	d := filter.(bson.D)
	return d[0].Value.(string)
}

func (f *fakeCollection) ReplaceOne(_ context.Context, filter, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	for _, o := range opts {
		if o.Upsert != nil && *o.Upsert {
			f.upserted = true
		}
	}
	f.docs[idOf(filter)] = replacement.(snapshotDocument)
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (f *fakeCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	if f.findErr != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, f.findErr, nil)
	}
	doc, ok := f.docs[idOf(filter)]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(doc, nil, nil)
}

func (f *fakeCollection) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	id := idOf(filter)
	if _, ok := f.docs[id]; !ok {
		return &mongo.DeleteResult{}, nil
	}
	delete(f.docs, id)
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func (f *fakeCollection) Distinct(context.Context, string, interface{}, ...*options.DistinctOptions) ([]interface{}, error) {
	out := make([]interface{}, 0, len(f.docs))
	for id := range f.docs {
		out = append(out, id)
	}
	return out, nil
}

func TestNewAdapter_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewAdapter(ctx, Config{}, &mockLogger{}); err == nil {
		t.Fatal("expected error for empty URL and database")
	}
	if _, err := NewAdapter(ctx, Config{URL: "mongodb://localhost:27017"}, &mockLogger{}); err == nil {
		t.Fatal("expected error for empty database")
	}
	if _, err := NewAdapter(ctx, Config{URL: "mongodb://localhost:27017", Database: "db"}, &mockLogger{}); err == nil {
		t.Fatal("expected error for empty collection")
	}
}

func TestAdapter_SnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection()
	a := newAdapter(&fakeConnection{}, coll, time.Second, &mockLogger{})
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	if err := a.PutSnapshot(ctx, "users.bson", []byte("payload")); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	if !coll.upserted {
		t.Fatal("expected ReplaceOne with upsert")
	}
	stored := coll.docs["users.bson"]
	if stored.Size != 7 || !stored.UpdatedAt.Equal(fixed) {
		t.Fatalf("unexpected stored document %+v", stored)
	}

	got, err := a.GetSnapshot(ctx, "users.bson")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("GetSnapshot() = %q", got)
	}

	if err := a.PutSnapshot(ctx, "orders.bson", []byte("o")); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	names, err := a.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if !reflect.DeepEqual(names, []string{"orders.bson", "users.bson"}) {
		t.Fatalf("ListSnapshots() = %v", names)
	}

	if err := a.DeleteSnapshot(ctx, "users.bson"); err != nil {
		t.Fatalf("DeleteSnapshot() error = %v", err)
	}
	if _, err := a.GetSnapshot(ctx, "users.bson"); !errors.Is(err, store.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestAdapter_GetSnapshotError(t *testing.T) {
	coll := newFakeCollection()
	coll.findErr = errors.New("server selection timeout")
	a := newAdapter(&fakeConnection{}, coll, time.Second, &mockLogger{})

	_, err := a.GetSnapshot(context.Background(), "users.bson")
	if err == nil || errors.Is(err, store.ErrSnapshotNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestPing_WhenClosed(t *testing.T) {
	conn := &fakeConnection{}
	a := newAdapter(conn, newFakeCollection(), time.Second, &mockLogger{})
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Ping(context.Background()); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if conn.disconnects != 1 {
		t.Fatalf("expected one disconnect, got %d", conn.disconnects)
	}
}

func TestHealthCheck_PingFailure(t *testing.T) {
	conn := &fakeConnection{pingErr: errors.New("no primary")}
	a := newAdapter(conn, newFakeCollection(), time.Second, &mockLogger{})
	if err := a.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}
}

func TestWithOperationTimeout_UsesAdapterTimeoutWhenNoDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}

	ctx, cancel := a.withOperationTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
}

func TestWithOperationTimeout_KeepsCallerDeadline(t *testing.T) {
	a := &Adapter{timeout: time.Hour}
	parent, cancelParent := context.WithTimeout(context.Background(), time.Second)
	defer cancelParent()

	ctx, cancel := a.withOperationTimeout(parent)
	defer cancel()

	deadline, _ := ctx.Deadline()
	if time.Until(deadline) > time.Second {
		t.Fatal("expected caller deadline to be kept")
	}
}
