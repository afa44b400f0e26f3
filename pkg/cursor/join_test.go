package cursor

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/panjf2000/ants/v2"

	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/projection"
	"github.com/nimburion/docstore/pkg/query"
)

func TestJoin_Basic(t *testing.T) {
	ctx := context.Background()
	owners := New(Records{{"_id": int64(10), "name": "x"}}, WithName("owners"))
	pets := New(Records{{"_id": int64(1), "fk": int64(10)}}, WithName("pets")).
		Join(Join{Cursor: owners, LocalField: "fk", ForeignField: "_id", As: "owner"})

	got, err := pets.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	want := []document.Record{{
		"_id":   int64(1),
		"fk":    int64(10),
		"owner": document.Record{"_id": int64(10), "name": "x"},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("All() = %#v, want %#v", got, want)
	}
}

func TestJoin_Semantics(t *testing.T) {
	ctx := context.Background()
	foreign := Records{
		{"_id": int64(1), "code": "a", "rank": int64(1)},
		{"_id": int64(2), "code": "a", "rank": int64(2)},
		{"_id": int64(3), "code": "b", "rank": int64(3)},
	}
	locals := Records{
		{"_id": int64(100), "ref": "a"},
		{"_id": int64(101), "ref": "z"},
		{"_id": int64(102), "ref": "b"},
		{"_id": int64(103)},
	}

	c := New(locals).Join(Join{Cursor: New(foreign), LocalField: "ref", ForeignField: "code", As: "match"})
	got, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("unmatched locals must be kept, got %d records", len(got))
	}
	if m := got[0]["match"].(document.Record); m["_id"] != int64(1) {
		t.Fatalf("first foreign match should win, got %v", m)
	}
	if _, ok := got[1]["match"]; ok {
		t.Fatal("unmatched local gained the alias key")
	}
	if m := got[2]["match"].(document.Record); m["_id"] != int64(3) {
		t.Fatalf("local b matched %v", m)
	}
	if _, ok := got[3]["match"]; ok {
		t.Fatal("local without the field gained the alias key")
	}
}

func TestJoin_DefaultAliasAndForeignProjection(t *testing.T) {
	ctx := context.Background()
	users := New(Records{{"_id": "u1", "name": "ada", "secret": "s"}}).
		Project(projection.Spec{}.Hide("secret"))
	posts := New(Records{{"_id": "p1", "author": "u1"}}).
		Join(Join{Cursor: users, LocalField: "author", ForeignField: "_id"})

	got, _, err := posts.First(ctx)
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	author, ok := got["author"].(document.Record)
	if !ok {
		t.Fatalf("author not replaced by the joined record: %#v", got["author"])
	}
	if _, ok := author["secret"]; ok {
		t.Fatal("foreign projection not applied to the attached view")
	}
	if author["name"] != "ada" {
		t.Fatalf("author = %v", author)
	}
}

func TestJoin_DottedAlias(t *testing.T) {
	ctx := context.Background()
	owner := document.Record{"_id": int64(10), "name": "x"}

	tests := []struct {
		name string
		join Join
		proj projection.Spec
		want document.Record
	}{
		{
			name: "default alias replaces the nested local field",
			join: Join{LocalField: "ref.id", ForeignField: "_id"},
			want: document.Record{"_id": int64(1), "ref": document.Record{"id": owner}},
		},
		{
			name: "unrelated nested projection keeps the shape",
			join: Join{LocalField: "ref.id", ForeignField: "_id"},
			proj: projection.Spec{}.Hide("ref.x"),
			want: document.Record{"_id": int64(1), "ref": document.Record{"id": owner}},
		},
		{
			name: "explicit alias creates intermediate records",
			join: Join{LocalField: "ref.id", ForeignField: "_id", As: "joined.owner"},
			want: document.Record{
				"_id":    int64(1),
				"ref":    document.Record{"id": int64(10)},
				"joined": document.Record{"owner": owner},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.join.Cursor = New(Records{document.Clone(owner)})
			c := New(Records{{"_id": int64(1), "ref": document.Record{"id": int64(10)}}}).Join(tt.join)
			if !tt.proj.IsEmpty() {
				c = c.Project(tt.proj)
			}
			got, _, err := c.First(ctx)
			if err != nil {
				t.Fatalf("First() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("First() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestJoin_ForeignRestrictionUsesForeignQuery(t *testing.T) {
	ctx := context.Background()
	foreign := New(Records{
		{"_id": int64(1), "active": false},
		{"_id": int64(2), "active": true},
	}).Where(query.Field("active", query.Is(true)))
	local := New(Records{{"a": int64(1)}, {"a": int64(2)}}).
		Join(Join{Cursor: foreign, LocalField: "a", ForeignField: "_id", As: "f"})

	got, _ := local.All(ctx)
	if _, ok := got[0]["f"]; ok {
		t.Fatal("foreign query ignored")
	}
	if _, ok := got[1]["f"]; !ok {
		t.Fatal("expected match for the active foreign record")
	}
	if foreign.Executed() {
		t.Fatal("join must execute a clone of the foreign cursor")
	}
}

func TestJoin_MultipleParallel(t *testing.T) {
	ctx := context.Background()
	pool, err := ants.NewPool(2, ants.WithNonblocking(true))
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	defer pool.Release()

	a := New(Records{{"_id": int64(1), "n": "a1"}})
	b := New(Records{{"_id": int64(2), "n": "b2"}})
	cc := New(Records{{"_id": int64(3), "n": "c3"}})

	c := New(Records{{"x": int64(1), "y": int64(2), "z": int64(3)}}, WithPool(pool)).
		Join(Join{Cursor: a, LocalField: "x", ForeignField: "_id", As: "ja"}).
		Join(Join{Cursor: b, LocalField: "y", ForeignField: "_id", As: "jb"}).
		Join(Join{Cursor: cc, LocalField: "z", ForeignField: "_id", As: "jc"})

	got, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	r := got[0]
	for alias, want := range map[string]string{"ja": "a1", "jb": "b2", "jc": "c3"} {
		j, ok := r[alias].(document.Record)
		if !ok || j["n"] != want {
			t.Fatalf("%s = %v, want n=%s", alias, r[alias], want)
		}
	}
}

func TestJoin_ProjectJoinedPath(t *testing.T) {
	ctx := context.Background()
	owners := New(Records{{"_id": int64(10), "name": "x"}})
	pets := New(Records{{"_id": int64(1), "fk": int64(10)}}).
		Join(Join{Cursor: owners, LocalField: "fk", ForeignField: "_id", As: "owner"}).
		Project(projection.Spec{}.Alias("owner.name", "ownerName").Hide("owner"))

	got, _, _ := pets.First(ctx)
	want := document.Record{"_id": int64(1), "fk": int64(10), "ownerName": "x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("First() = %#v, want %#v", got, want)
	}
}

func TestJoin_Errors(t *testing.T) {
	ctx := context.Background()
	locals := Records{{"k": int64(1)}}

	tests := []struct {
		name string
		join Join
		want error
	}{
		{"nil cursor", Join{LocalField: "k", ForeignField: "k"}, ErrInvalidJoin},
		{"missing field", Join{Cursor: New(locals), LocalField: "k"}, ErrInvalidJoin},
		{"foreign failure", Join{Cursor: New(nil), LocalField: "k", ForeignField: "k"}, ErrNilSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(locals).Join(tt.join)
			err := c.Exec(ctx)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Exec() error = %v, want %v", err, tt.want)
			}
			if c.Executed() {
				t.Fatal("failed execution must not leave results")
			}
		})
	}
}

func TestJoin_DepthLimit(t *testing.T) {
	self := New(Records{{"_id": int64(1), "parent": int64(1)}}, WithMaxJoinDepth(3))
	self.Join(Join{Cursor: self, LocalField: "parent", ForeignField: "_id", As: "up"})

	if err := self.Exec(context.Background()); !errors.Is(err, ErrJoinDepth) {
		t.Fatalf("Exec() error = %v, want ErrJoinDepth", err)
	}
}

func TestJoin_NestedJoins(t *testing.T) {
	ctx := context.Background()
	countries := New(Records{{"_id": "it", "name": "Italy"}})
	cities := New(Records{{"_id": int64(7), "country": "it"}}).
		Join(Join{Cursor: countries, LocalField: "country", ForeignField: "_id"})
	people := New(Records{{"_id": int64(1), "city": int64(7)}}).
		Join(Join{Cursor: cities, LocalField: "city", ForeignField: "_id"})

	got, _, err := people.First(ctx)
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	v, ok := document.Lookup(got, "city.country.name")
	if !ok || v != "Italy" {
		t.Fatalf("city.country.name = %v, %v", v, ok)
	}
}
