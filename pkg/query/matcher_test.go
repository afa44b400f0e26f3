package query

import (
	"testing"

	"github.com/nimburion/docstore/pkg/document"
)

func TestMatch(t *testing.T) {
	record := document.Record{
		"_id":  int64(1),
		"name": "ada",
		"age":  int64(36),
		"address": document.Record{
			"city": "london",
			"zip":  "n1",
		},
		"tags": []any{"math", "engines"},
		"items": []any{
			document.Record{"sku": "a", "qty": int64(2)},
			document.Record{"sku": "b", "qty": int64(5)},
		},
		"meta": document.Record{},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty query", Filter{}, true},
		{"literal", Filter{"name": "ada"}, true},
		{"literal mismatch", Filter{"name": "bob"}, false},
		{"dotted path", Filter{"address.city": "london"}, true},
		{"indexed path", Filter{"tags[1]": "engines"}, true},
		{"dotted index", Filter{"items.0.sku": "a"}, true},
		{"whole list literal", Filter{"tags": []any{"math", "engines"}}, true},
		{"whole record literal", Filter{"address": map[string]any{"$eq": map[string]any{"city": "london", "zip": "n1"}}}, true},
		{"empty object literal", Filter{"meta": map[string]any{}}, true},
		{"missing field literal", Filter{"nope": "x"}, false},
		{"predicates all hold", Filter{"age": map[string]any{"$gt": 30, "$lt": 40}}, true},
		{"predicates partial", Filter{"age": map[string]any{"$gt": 30, "$lt": 35}}, false},
		{"unknown key fails closed", Filter{"age": map[string]any{"$gt": 30, "$near": 1}}, false},
		{"plain object fails closed", Filter{"address": map[string]any{"city": "london"}}, false},
		{"or", Filter{"$or": []any{map[string]any{"name": "bob"}, map[string]any{"age": 36}}}, true},
		{"or none", Filter{"$or": []any{map[string]any{"name": "bob"}}}, false},
		{"and", Filter{"$and": []any{map[string]any{"name": "ada"}, map[string]any{"age": 36}}}, true},
		{"and partial", Filter{"$and": []any{map[string]any{"name": "ada"}, map[string]any{"age": 1}}}, false},
		{"combinator beside field", Filter{"name": "ada", "$or": []any{map[string]any{"age": 1}}}, false},
		{"or inside field groups whole record", Filter{"group": map[string]any{"$or": []any{map[string]any{"name": "ada"}}}}, true},
		{"nested all list", Filter{"items": map[string]any{"$nested": []any{map[string]any{"qty": map[string]any{"$gt": 1}}}}}, true},
		{"nested all list one fails", Filter{"items": map[string]any{"$nested": []any{map[string]any{"qty": map[string]any{"$gt": 3}}}}}, false},
		{"nested all record", Filter{"address": map[string]any{"$nested": []any{map[string]any{"city": "london"}}}}, true},
		{"nested all scalar", Filter{"name": map[string]any{"$nested": []any{map[string]any{"a": 1}}}}, false},
		{"nested all non-record list", Filter{"tags": map[string]any{"$nested": []any{map[string]any{"a": 1}}}}, false},
		{"invalid top-level", Filter{"$xor": []any{}}, false},
		{"ne on missing", Filter{"nope": map[string]any{"$ne": 1}}, true},
		{"in on list element", Filter{"tags[0]": map[string]any{"$in": []any{"math", "art"}}}, true},
		{"type of whole list", Filter{"tags": map[string]any{"$type": "list"}}, true},
		{"exists nested", Filter{"address.zip": map[string]any{"$exists": true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(Parse(tt.filter), record); got != tt.want {
				t.Fatalf("Match(%v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestMatch_BuilderEquivalence(t *testing.T) {
	record := document.Record{"a": int64(3), "b": "xyz"}

	built := Field("a", Gte(3)).And(
		Or(Field("b", Contains("y")), Field("c")),
	)
	parsed := Parse(Filter{
		"a":   map[string]any{"$gte": 3},
		"$or": []any{map[string]any{"b": map[string]any{"$contains": "y"}}, map[string]any{"c": map[string]any{"$exists": true}}},
	})

	if Match(built, record) != Match(parsed, record) {
		t.Fatal("builder and parsed queries disagree")
	}
	if !Match(built, record) {
		t.Fatal("expected record to match")
	}
}

func TestMatch_DoesNotMutateRecord(t *testing.T) {
	record := document.Record{"a": document.Record{"b": int64(1)}}
	Match(Parse(Filter{"a.b": 1, "a": map[string]any{"$type": "object"}}), record)

	if len(record) != 1 || len(record["a"].(document.Record)) != 1 {
		t.Fatalf("record mutated: %#v", record)
	}
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(Field("n", Lt(2)))
	if !m.Match(document.Record{"n": int64(1)}) || m.Match(document.Record{"n": int64(2)}) {
		t.Fatal("matcher evaluated wrong")
	}
	if m.Query().IsEmpty() {
		t.Fatal("matcher lost its query")
	}
}
