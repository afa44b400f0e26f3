// Package query implements the filter language of the store: parsing raw
// filters into tagged query nodes and matching records against them.
//
// A filter maps field paths to constraints:
//
//	{"age": 30}                              equality
//	{"age": {"$gte": 18, "$lt": 65}}          predicates, all must hold
//	{"$or": [{"a": 1}, {"b": 2}]}            combinator over sub-queries
//	{"items": {"$nested": [{"qty": {"$gt": 0}}]}}
//
// Parsing never fails. Anything the parser cannot classify becomes an
// invalid node that never matches.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nimburion/docstore/pkg/document"
)

// Filter is the raw, map-shaped form of a query.
type Filter map[string]any

// Node is one top-level constraint of a Query.
type Node interface {
	node()
}

// FieldNode constrains the value at Path. Every term must hold.
type FieldNode struct {
	Path  string
	Terms []Term
}

// CombinatorNode applies a combinator to a list of sub-queries.
type CombinatorNode struct {
	Kind    CombinatorKind
	Queries []Query
}

// InvalidNode is a top-level key that could not be parsed. It never matches.
type InvalidNode struct {
	Key    string
	Reason string
}

func (FieldNode) node()      {}
func (CombinatorNode) node() {}
func (InvalidNode) node()    {}

// Term is one constraint applied to a field.
type Term interface {
	term()
}

// Literal requires the field to equal Value.
type Literal struct {
	Value any
}

// Predicate applies a named predicate with its operand.
type Predicate struct {
	Kind    PredicateKind
	Operand any
}

// Combinator applies a combinator from inside a field constraint.
type Combinator struct {
	Kind    CombinatorKind
	Queries []Query
}

// Invalid is a constraint that could not be parsed. It never matches.
type Invalid struct {
	Key    string
	Reason string
}

func (Literal) term()    {}
func (Predicate) term()  {}
func (Combinator) term() {}
func (Invalid) term()    {}

// Query is a conjunction of nodes. The zero value matches every record.
type Query struct {
	nodes []Node
}

// New builds a query from nodes.
func New(nodes ...Node) Query {
	return Query{nodes: append([]Node(nil), nodes...)}
}

// Nodes returns the top-level nodes of q.
func (q Query) Nodes() []Node {
	return append([]Node(nil), q.nodes...)
}

// IsEmpty reports whether q has no constraints.
func (q Query) IsEmpty() bool {
	return len(q.nodes) == 0
}

// And returns a query requiring q and every one of others.
func (q Query) And(others ...Query) Query {
	n := len(q.nodes)
	for _, o := range others {
		n += len(o.nodes)
	}
	nodes := make([]Node, 0, n)
	nodes = append(nodes, q.nodes...)
	for _, o := range others {
		nodes = append(nodes, o.nodes...)
	}
	return Query{nodes: nodes}
}

// Match reports whether r satisfies q.
func (q Query) Match(r document.Record) bool {
	return Match(q, r)
}

// String renders q for logs.
func (q Query) String() string {
	parts := make([]string, 0, len(q.nodes))
	for _, n := range q.nodes {
		parts = append(parts, describeNode(n))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func describeNode(n Node) string {
	switch t := n.(type) {
	case FieldNode:
		terms := make([]string, 0, len(t.Terms))
		for _, term := range t.Terms {
			terms = append(terms, describeTerm(term))
		}
		return t.Path + ": " + strings.Join(terms, " ")
	case CombinatorNode:
		return t.Kind.String() + ": " + describeQueries(t.Queries)
	case InvalidNode:
		return t.Key + ": <invalid>"
	}
	return "<unknown>"
}

func describeTerm(t Term) string {
	switch v := t.(type) {
	case Literal:
		return fmt.Sprintf("%v", v.Value)
	case Predicate:
		return fmt.Sprintf("%s %v", v.Kind, v.Operand)
	case Combinator:
		return v.Kind.String() + " " + describeQueries(v.Queries)
	case Invalid:
		return v.Key + " <invalid>"
	}
	return "<unknown>"
}

func describeQueries(qs []Query) string {
	parts := make([]string, 0, len(qs))
	for _, q := range qs {
		parts = append(parts, q.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Parse converts a raw filter into a Query. Keys are processed in sorted
// order so the node list is deterministic.
func Parse(f Filter) Query {
	if len(f) == 0 {
		return Query{}
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nodes := make([]Node, 0, len(keys))
	for _, key := range keys {
		nodes = append(nodes, parseNode(key, document.Normalize(f[key])))
	}
	return Query{nodes: nodes}
}

// ParseJSON decodes a JSON object into a Query. Only malformed JSON is an
// error; unrecognized constraints still parse to non-matching nodes.
func ParseJSON(data []byte) (Query, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f Filter
	if err := dec.Decode(&f); err != nil {
		return Query{}, fmt.Errorf("decode filter: %w", err)
	}
	return Parse(f), nil
}

func parseNode(key string, value any) Node {
	if !strings.HasPrefix(key, "$") {
		return FieldNode{Path: key, Terms: parseConstraint(value)}
	}
	kind, ok := ParseCombinator(key)
	if !ok {
		return InvalidNode{Key: key, Reason: "unknown combinator"}
	}
	if kind == NestedAll {
		return InvalidNode{Key: key, Reason: "nested-all requires a field"}
	}
	queries, ok := parseQueries(value)
	if !ok {
		return InvalidNode{Key: key, Reason: "sub-queries must be a list of objects"}
	}
	return CombinatorNode{Kind: kind, Queries: queries}
}

func parseConstraint(value any) []Term {
	obj, ok := value.(document.Record)
	if !ok {
		return []Term{Literal{Value: value}}
	}
	if len(obj) == 0 {
		return []Term{Literal{Value: document.Record{}}}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]Term, 0, len(keys))
	for _, key := range keys {
		terms = append(terms, parseTerm(key, obj[key]))
	}
	return terms
}

func parseTerm(key string, operand any) Term {
	if kind, ok := ParsePredicate(key); ok {
		return newPredicate(kind, operand)
	}
	if kind, ok := ParseCombinator(key); ok {
		queries, ok := parseQueries(operand)
		if !ok {
			return Invalid{Key: key, Reason: "sub-queries must be a list of objects"}
		}
		return Combinator{Kind: kind, Queries: queries}
	}
	return Invalid{Key: key, Reason: "not a predicate or combinator"}
}

func parseQueries(value any) ([]Query, bool) {
	list, ok := value.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Query, 0, len(list))
	for _, item := range list {
		obj, ok := item.(document.Record)
		if !ok {
			return nil, false
		}
		out = append(out, Parse(Filter(obj)))
	}
	return out, true
}
