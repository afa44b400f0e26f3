package query

import (
	"regexp"

	"github.com/nimburion/docstore/pkg/document"
)

// Field builds a single-field query. With no terms the field must exist.
func Field(path string, terms ...Term) Query {
	if len(terms) == 0 {
		terms = []Term{Exists(true)}
	}
	return Query{nodes: []Node{FieldNode{Path: path, Terms: append([]Term(nil), terms...)}}}
}

// And requires every query to match.
func And(queries ...Query) Query {
	return Query{nodes: []Node{CombinatorNode{Kind: AllOf, Queries: append([]Query(nil), queries...)}}}
}

// Or requires at least one query to match.
func Or(queries ...Query) Query {
	return Query{nodes: []Node{CombinatorNode{Kind: AnyOf, Queries: append([]Query(nil), queries...)}}}
}

// Nested requires the field's record, or every record in its list, to match
// all queries.
func Nested(queries ...Query) Term {
	return Combinator{Kind: NestedAll, Queries: append([]Query(nil), queries...)}
}

// Is requires literal equality.
func Is(v any) Term { return Literal{Value: document.Normalize(v)} }

// Eq requires the field to equal v.
func Eq(v any) Term { return newPredicate(OpEq, v) }

// Ne requires the field to be absent or differ from v.
func Ne(v any) Term { return newPredicate(OpNe, v) }

// Lt requires the field to order before v.
func Lt(v any) Term { return newPredicate(OpLt, v) }

// Lte requires the field to order before or equal to v.
func Lte(v any) Term { return newPredicate(OpLte, v) }

// Gt requires the field to order after v.
func Gt(v any) Term { return newPredicate(OpGt, v) }

// Gte requires the field to order after or equal to v.
func Gte(v any) Term { return newPredicate(OpGte, v) }

// In requires the field to equal one of values.
func In(values ...any) Term { return newPredicate(OpIn, append([]any{}, values...)) }

// Nin requires the field to be absent or equal none of values.
func Nin(values ...any) Term { return newPredicate(OpNin, append([]any{}, values...)) }

// Exists requires the field to be present when want is true and absent
// otherwise.
func Exists(want bool) Term { return newPredicate(OpExists, want) }

// Contains requires a string field holding sub.
func Contains(sub string) Term { return newPredicate(OpContains, sub) }

// Regex compiles pattern. An invalid pattern never matches.
func Regex(pattern string) Term { return newPredicate(OpRegex, pattern) }

// MatchRegexp requires a string field matching re.
func MatchRegexp(re *regexp.Regexp) Term { return newPredicate(OpRegex, re) }

// HasType requires the field to hold a value of type t.
func HasType(t document.Type) Term { return newPredicate(OpType, t) }
