package query

// CombinatorKind enumerates the boolean combinators.
type CombinatorKind int

// Combinators
const (
	// AllOf ($and) matches when every sub-query matches.
	AllOf CombinatorKind = iota
	// AnyOf ($or) matches when at least one sub-query matches.
	AnyOf
	// NestedAll ($nested) applies inside a field: the field must hold a
	// record, or a non-empty list of records, and each must match every
	// sub-query.
	NestedAll
)

// ParseCombinator resolves a combinator key such as "$or".
func ParseCombinator(name string) (CombinatorKind, bool) {
	switch name {
	case "$and":
		return AllOf, true
	case "$or":
		return AnyOf, true
	case "$nested":
		return NestedAll, true
	}
	return 0, false
}

func (k CombinatorKind) String() string {
	switch k {
	case AllOf:
		return "$and"
	case AnyOf:
		return "$or"
	case NestedAll:
		return "$nested"
	}
	return "$unknown"
}
