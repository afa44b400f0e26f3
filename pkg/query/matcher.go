package query

import "github.com/nimburion/docstore/pkg/document"

// Matcher evaluates one query against many records.
type Matcher struct {
	query Query
}

// NewMatcher returns a matcher for q.
func NewMatcher(q Query) *Matcher {
	return &Matcher{query: q}
}

// Query returns the query the matcher evaluates.
func (m *Matcher) Query() Query {
	return m.query
}

// Match reports whether r satisfies the matcher's query.
func (m *Matcher) Match(r document.Record) bool {
	return Match(m.query, r)
}

// Match reports whether r satisfies q. Every node must hold.
func Match(q Query, r document.Record) bool {
	v := &view{record: r}
	return v.matches(q)
}

// view is the per-call read state of one record. The flattened form is
// built on first use and discarded with the view.
type view struct {
	record document.Record
	flat   document.Flat
}

func (v *view) get(path string) (any, bool) {
	if v.flat == nil {
		v.flat = document.Flatten(v.record)
	}
	if val, ok := v.flat[path]; ok {
		return val, true
	}
	return document.Lookup(v.record, path)
}

func (v *view) matches(q Query) bool {
	for _, n := range q.nodes {
		if !v.node(n) {
			return false
		}
	}
	return true
}

func (v *view) node(n Node) bool {
	switch t := n.(type) {
	case FieldNode:
		for _, term := range t.Terms {
			if !v.term(t.Path, term) {
				return false
			}
		}
		return true
	case CombinatorNode:
		return v.combine(t.Kind, t.Queries, "")
	case InvalidNode:
		return false
	}
	return false
}

func (v *view) term(path string, t Term) bool {
	switch c := t.(type) {
	case Literal:
		val, ok := v.get(path)
		return ok && document.Equal(val, c.Value)
	case Predicate:
		val, ok := v.get(path)
		return c.Test(val, ok)
	case Combinator:
		return v.combine(c.Kind, c.Queries, path)
	case Invalid:
		return false
	}
	return false
}

func (v *view) combine(kind CombinatorKind, queries []Query, path string) bool {
	switch kind {
	case AllOf:
		for _, q := range queries {
			if !v.matches(q) {
				return false
			}
		}
		return true
	case AnyOf:
		for _, q := range queries {
			if v.matches(q) {
				return true
			}
		}
		return false
	case NestedAll:
		if path == "" {
			return false
		}
		val, ok := v.get(path)
		if !ok {
			return false
		}
		return nestedAll(val, queries)
	}
	return false
}

func nestedAll(val any, queries []Query) bool {
	var records []document.Record
	switch t := val.(type) {
	case document.Record:
		records = []document.Record{t}
	case []any:
		if len(t) == 0 {
			return false
		}
		records = make([]document.Record, 0, len(t))
		for _, item := range t {
			r, ok := item.(document.Record)
			if !ok {
				return false
			}
			records = append(records, r)
		}
	default:
		return false
	}

	for _, r := range records {
		sub := &view{record: r}
		for _, q := range queries {
			if !sub.matches(q) {
				return false
			}
		}
	}
	return true
}
