package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/projection"
	"github.com/nimburion/docstore/pkg/query"
)

// countingSource records how often the cursor reads it.
type countingSource struct {
	records []document.Record
	reads   int
}

func (s *countingSource) Records() []document.Record {
	s.reads++
	return s.records
}

func TestCursor_ExecIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{records: numbered(1, 2, 3)}
	c := New(src, WithName("nums")).Where(query.Field("v", query.Gt(1)))

	first, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	second, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if src.reads != 1 {
		t.Fatalf("source read %d times, want 1", src.reads)
	}
	if !equalIDs(ids(first), ids(second)) || !equalIDs(ids(first), []int64{1, 2}) {
		t.Fatalf("results differ: %v vs %v", ids(first), ids(second))
	}
	if !c.Executed() || c.Visited() != 3 {
		t.Fatalf("Executed() = %v, Visited() = %d", c.Executed(), c.Visited())
	}
}

func TestCursor_ConfigurationResets(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{records: numbered(1, 2, 3, 4)}
	c := New(src)

	if n, _ := c.Count(ctx); n != 4 {
		t.Fatalf("Count() = %d, want 4", n)
	}

	configure := []func(*Cursor){
		func(c *Cursor) { c.Skip(1) },
		func(c *Cursor) { c.Limit(2) },
		func(c *Cursor) { c.Reverse(true) },
		func(c *Cursor) { c.Where(query.Field("v", query.Lt(4))) },
		func(c *Cursor) { c.Project(projection.Spec{}.Hide("v")) },
	}
	for i, fn := range configure {
		fn(c)
		if c.Executed() {
			t.Fatalf("configuration step %d left the cursor executed", i)
		}
		if err := c.Exec(ctx); err != nil {
			t.Fatalf("Exec() error = %v", err)
		}
	}

	got, _ := c.All(ctx)
	if !equalIDs(ids(got), []int64{1, 0}) {
		t.Fatalf("ids = %v, want [1 0]", ids(got))
	}
	if _, ok := got[0]["v"]; ok {
		t.Fatal("projection did not hide v")
	}
}

func TestCursor_ResultsAreCopies(t *testing.T) {
	ctx := context.Background()
	records := []document.Record{{"_id": int64(1), "nested": document.Record{"k": "v"}}}
	c := New(Records(records))

	got, _ := c.All(ctx)
	got[0]["nested"].(document.Record)["k"] = "changed"

	if records[0]["nested"].(document.Record)["k"] != "v" {
		t.Fatal("cursor results share state with the source")
	}
}

func TestCursor_CachedResultsSurviveCallerMutation(t *testing.T) {
	ctx := context.Background()
	c := New(Records{{"_id": int64(1), "a": int64(1), "nested": document.Record{"k": "v"}}})

	first, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	first[0]["a"] = int64(999)
	first[0]["nested"].(document.Record)["k"] = "changed"

	r, _, _ := c.At(ctx, 0)
	r["a"] = int64(998)
	_ = c.Each(ctx, func(_ int, r document.Record) error {
		r["a"] = int64(997)
		return nil
	})

	second, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	want := document.Record{"_id": int64(1), "a": int64(1), "nested": document.Record{"k": "v"}}
	if !document.Equal(second[0], want) {
		t.Fatalf("All() after mutation = %v, want %v", second[0], want)
	}
}

func TestCursor_Accessors(t *testing.T) {
	ctx := context.Background()
	c := New(Records(numbered(10, 20, 30)))

	r, ok, err := c.At(ctx, 1)
	if err != nil || !ok || r["v"] != int64(20) {
		t.Fatalf("At(1) = %v, %v, %v", r, ok, err)
	}
	if _, ok, _ := c.At(ctx, 3); ok {
		t.Fatal("At(3) should be out of range")
	}
	if _, ok, _ := c.At(ctx, -1); ok {
		t.Fatal("At(-1) should be out of range")
	}

	first, ok, _ := c.First(ctx)
	if !ok || first["v"] != int64(10) {
		t.Fatalf("First() = %v, %v", first, ok)
	}

	var seen []int64
	stop := errors.New("stop")
	err = c.Each(ctx, func(i int, r document.Record) error {
		seen = append(seen, r["v"].(int64))
		if i == 1 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || len(seen) != 2 {
		t.Fatalf("Each() = %v, seen %v", err, seen)
	}

	empty := New(Records(nil))
	if _, ok, err := empty.First(ctx); ok || err != nil {
		t.Fatalf("First() on empty = %v, %v", ok, err)
	}
	all, err := empty.All(ctx)
	if err != nil || all == nil || len(all) != 0 {
		t.Fatalf("All() on empty = %#v, %v", all, err)
	}
}

func TestCursor_Clone(t *testing.T) {
	ctx := context.Background()
	base := New(Records(numbered(1, 2, 3))).Where(query.Field("v", query.Gte(2)))
	if err := base.Exec(ctx); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	clone := base.Clone().Limit(1)
	if clone.Executed() {
		t.Fatal("clone should start unexecuted")
	}
	one, _ := clone.All(ctx)
	two, _ := base.All(ctx)
	if len(one) != 1 || len(two) != 2 {
		t.Fatalf("clone len %d, base len %d", len(one), len(two))
	}
}

func TestCursor_NilSource(t *testing.T) {
	if err := New(nil).Exec(context.Background()); !errors.Is(err, ErrNilSource) {
		t.Fatalf("Exec() error = %v, want ErrNilSource", err)
	}
}
