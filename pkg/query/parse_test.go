package query

import (
	"regexp"
	"testing"

	"github.com/nimburion/docstore/pkg/document"
)

func TestParse_NodeShapes(t *testing.T) {
	q := Parse(Filter{
		"$or":  []any{map[string]any{"a": 1}},
		"age":  map[string]any{"$gte": 18, "$lt": 65},
		"name": "ada",
	})

	nodes := q.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}

	or, ok := nodes[0].(CombinatorNode)
	if !ok || or.Kind != AnyOf || len(or.Queries) != 1 {
		t.Fatalf("expected $or combinator node first, got %#v", nodes[0])
	}

	age, ok := nodes[1].(FieldNode)
	if !ok || age.Path != "age" || len(age.Terms) != 2 {
		t.Fatalf("expected age field with two terms, got %#v", nodes[1])
	}
	gte, ok := age.Terms[0].(Predicate)
	if !ok || gte.Kind != OpGte || gte.Operand != int64(18) {
		t.Fatalf("expected normalized $gte 18, got %#v", age.Terms[0])
	}

	name, ok := nodes[2].(FieldNode)
	if !ok {
		t.Fatalf("expected name field, got %#v", nodes[2])
	}
	if lit, ok := name.Terms[0].(Literal); !ok || lit.Value != "ada" {
		t.Fatalf("expected literal term, got %#v", name.Terms[0])
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
	}{
		{"unknown top-level combinator", Filter{"$xor": []any{}}},
		{"top-level nested", Filter{"$nested": []any{map[string]any{"a": 1}}}},
		{"combinator with non-list", Filter{"$or": map[string]any{"a": 1}}},
		{"combinator with scalar element", Filter{"$and": []any{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := Parse(tt.filter).Nodes()
			if len(nodes) != 1 {
				t.Fatalf("expected one node, got %d", len(nodes))
			}
			if _, ok := nodes[0].(InvalidNode); !ok {
				t.Fatalf("expected InvalidNode, got %#v", nodes[0])
			}
		})
	}
}

func TestParse_InvalidTerms(t *testing.T) {
	tests := []struct {
		name       string
		constraint map[string]any
	}{
		{"unknown key", map[string]any{"$near": 1}},
		{"plain key", map[string]any{"b": 1}},
		{"bad regex", map[string]any{"$regex": "("}},
		{"regex non-string", map[string]any{"$regex": 5}},
		{"in non-list", map[string]any{"$in": 3}},
		{"nin non-list", map[string]any{"$nin": "x"}},
		{"unknown type tag", map[string]any{"$type": "widget"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := Parse(Filter{"a": tt.constraint}).Nodes()[0].(FieldNode)
			if _, ok := node.Terms[0].(Invalid); !ok {
				t.Fatalf("expected Invalid term, got %#v", node.Terms[0])
			}
		})
	}
}

func TestParse_CompilesRegex(t *testing.T) {
	node := Parse(Filter{"a": map[string]any{"$regex": "^x+$"}}).Nodes()[0].(FieldNode)
	p := node.Terms[0].(Predicate)
	if _, ok := p.Operand.(*regexp.Regexp); !ok {
		t.Fatalf("expected compiled pattern, got %T", p.Operand)
	}
}

func TestParse_EmptyObjectIsEquality(t *testing.T) {
	node := Parse(Filter{"meta": map[string]any{}}).Nodes()[0].(FieldNode)
	lit, ok := node.Terms[0].(Literal)
	if !ok {
		t.Fatalf("expected literal, got %#v", node.Terms[0])
	}
	if !document.Equal(lit.Value, document.Record{}) {
		t.Fatalf("expected empty record literal, got %#v", lit.Value)
	}
}

func TestParseJSON(t *testing.T) {
	q, err := ParseJSON([]byte(`{"n": {"$gt": 2}, "tags": ["a"]}`))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if !q.Match(document.Record{"n": int64(3), "tags": []any{"a"}}) {
		t.Fatal("expected record to match decoded filter")
	}
	if _, err := ParseJSON([]byte(`{"n":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestQuery_And(t *testing.T) {
	a := Parse(Filter{"a": 1})
	b := Parse(Filter{"b": 2})
	both := a.And(b)

	if len(both.Nodes()) != 2 || len(a.Nodes()) != 1 {
		t.Fatal("And should concatenate without mutating the receiver")
	}
	if !both.Match(document.Record{"a": 1, "b": 2}) {
		t.Fatal("expected conjunction to match")
	}
	if both.Match(document.Record{"a": 1}) {
		t.Fatal("conjunction matched a record missing b")
	}
}
