package query

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nimburion/docstore/pkg/document"
)

// PredicateKind enumerates the supported predicates.
type PredicateKind int

// Predicates
const (
	OpEq PredicateKind = iota
	OpNe
	OpRegex
	OpContains
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
	OpNin
	OpExists
	OpType
)

var predicateNames = map[string]PredicateKind{
	"$eq":       OpEq,
	"$ne":       OpNe,
	"$regex":    OpRegex,
	"$contains": OpContains,
	"$lt":       OpLt,
	"$lte":      OpLte,
	"$gt":       OpGt,
	"$gte":      OpGte,
	"$in":       OpIn,
	"$nin":      OpNin,
	"$exists":   OpExists,
	"$type":     OpType,
}

// ParsePredicate resolves a predicate key such as "$gte".
func ParsePredicate(name string) (PredicateKind, bool) {
	k, ok := predicateNames[name]
	return k, ok
}

func (k PredicateKind) String() string {
	switch k {
	case OpEq:
		return "$eq"
	case OpNe:
		return "$ne"
	case OpRegex:
		return "$regex"
	case OpContains:
		return "$contains"
	case OpLt:
		return "$lt"
	case OpLte:
		return "$lte"
	case OpGt:
		return "$gt"
	case OpGte:
		return "$gte"
	case OpIn:
		return "$in"
	case OpNin:
		return "$nin"
	case OpExists:
		return "$exists"
	case OpType:
		return "$type"
	}
	return "$unknown"
}

// newPredicate prepares an operand once so evaluation never re-parses it.
// Operands that can never be satisfied yield an Invalid term.
func newPredicate(kind PredicateKind, operand any) Term {
	operand = document.Normalize(operand)
	switch kind {
	case OpRegex:
		switch t := operand.(type) {
		case string:
			re, err := regexp.Compile(t)
			if err != nil {
				return Invalid{Key: kind.String(), Reason: err.Error()}
			}
			return Predicate{Kind: kind, Operand: re}
		case *regexp.Regexp:
			if t == nil {
				return Invalid{Key: kind.String(), Reason: "nil pattern"}
			}
			return Predicate{Kind: kind, Operand: t}
		}
		return Invalid{Key: kind.String(), Reason: "pattern must be a string or regexp"}
	case OpIn, OpNin:
		if _, ok := operand.([]any); !ok {
			return Invalid{Key: kind.String(), Reason: "operand must be a list"}
		}
	case OpExists:
		b, ok := operand.(bool)
		if !ok {
			b = document.Truthy(operand)
		}
		return Predicate{Kind: kind, Operand: b}
	case OpType:
		var tag document.Type
		switch t := operand.(type) {
		case string:
			parsed, ok := document.ParseType(t)
			if !ok {
				return Invalid{Key: kind.String(), Reason: "unknown type tag " + t}
			}
			tag = parsed
		case document.Type:
			parsed, ok := document.ParseType(string(t))
			if !ok {
				return Invalid{Key: kind.String(), Reason: "unknown type tag " + string(t)}
			}
			tag = parsed
		default:
			return Invalid{Key: kind.String(), Reason: "type tag must be a string"}
		}
		return Predicate{Kind: kind, Operand: tag}
	}
	return Predicate{Kind: kind, Operand: operand}
}

// Test evaluates the predicate against a field value. present is false when
// the field does not exist in the record.
func (p Predicate) Test(value any, present bool) bool {
	return p.Kind.eval(p.Operand, value, present)
}

func (k PredicateKind) eval(operand, value any, present bool) bool {
	switch k {
	case OpEq:
		return present && document.Equal(value, operand)
	case OpNe:
		return !present || !document.Equal(value, operand)
	case OpRegex:
		re, ok := operand.(*regexp.Regexp)
		s, isString := value.(string)
		return present && ok && isString && re.MatchString(s)
	case OpContains:
		sub, ok := operand.(string)
		s, isString := value.(string)
		return present && ok && isString && strings.Contains(s, sub)
	case OpLt, OpLte, OpGt, OpGte:
		if !present {
			return false
		}
		c, ok := compare(value, operand)
		if !ok {
			return false
		}
		switch k {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	case OpIn:
		list, ok := operand.([]any)
		return present && ok && contains(list, value)
	case OpNin:
		list, ok := operand.([]any)
		return ok && (!present || !contains(list, value))
	case OpExists:
		want, _ := operand.(bool)
		return (present && document.Truthy(value)) == want
	case OpType:
		tag, ok := operand.(document.Type)
		if !ok {
			return false
		}
		actual := document.TypeNull
		if present {
			actual = document.TypeOf(value)
		}
		return actual == tag
	}
	return false
}

func contains(list []any, v any) bool {
	for _, item := range list {
		if document.Equal(item, v) {
			return true
		}
	}
	return false
}

// compare orders a field value against an operand. Two times compare
// chronologically. Otherwise both sides must be numeric, where a string
// stands for its length in characters.
func compare(value, operand any) (int, bool) {
	if tv, ok := value.(time.Time); ok {
		to, ok := operand.(time.Time)
		if !ok {
			return 0, false
		}
		return tv.Compare(to), true
	}
	a, ok := orderValue(value)
	if !ok {
		return 0, false
	}
	b, ok := orderValue(operand)
	if !ok {
		return 0, false
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}

func orderValue(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		return float64(utf8.RuneCountInString(s)), true
	}
	return document.Number(v)
}
