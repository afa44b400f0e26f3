// Package document defines the record model shared by the store: records,
// flattened views, value classification and value equality.
package document

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"time"
)

// IDField is the primary key field of every stored record.
const IDField = "_id"

// Record is one stored document.
// Values are nil, bool, string, int64, float64, time.Time, Record or []any
// once normalized.
type Record = map[string]any

// Type is the runtime classification of a value.
type Type string

// Value classifications
const (
	TypeNull    Type = "null"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeDate    Type = "date"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeRegexp  Type = "regexp"
	TypeUnknown Type = "unknown"
)

// ParseType resolves a type tag, accepting the common aliases.
func ParseType(tag string) (Type, bool) {
	switch tag {
	case "null", "nil", "undefined":
		return TypeNull, true
	case "string", "text":
		return TypeString, true
	case "number", "int", "integer", "float", "double":
		return TypeNumber, true
	case "boolean", "bool":
		return TypeBoolean, true
	case "date", "time", "timestamp":
		return TypeDate, true
	case "object", "record":
		return TypeObject, true
	case "array", "list":
		return TypeArray, true
	case "regexp", "regex":
		return TypeRegexp, true
	}
	return "", false
}

// TypeOf classifies v.
func TypeOf(v any) Type {
	switch t := v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case time.Time:
		return TypeDate
	case *time.Time:
		if t == nil {
			return TypeNull
		}
		return TypeDate
	case Record:
		return TypeObject
	case []any:
		return TypeArray
	case *regexp.Regexp:
		if t == nil {
			return TypeNull
		}
		return TypeRegexp
	}
	if _, ok := Number(v); ok {
		return TypeNumber
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return TypeObject
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return TypeNull
		}
	}
	return TypeUnknown
}

// Number converts any Go numeric value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Truthy reports whether v counts as set: nil, false, zero, NaN and the
// empty string are falsy, everything else is truthy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := Number(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return TypeOf(v) != TypeNull
}

// Equal compares two values structurally. Numbers compare by value
// regardless of their Go type, times by instant.
func Equal(a, b any) bool {
	if ia, ok := a.(int64); ok {
		if ib, ok := b.(int64); ok {
			return ia == ib
		}
	}
	if fa, ok := Number(a); ok {
		fb, ok := Number(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case *regexp.Regexp:
		y, ok := b.(*regexp.Regexp)
		return ok && x.String() == y.String()
	case Record:
		y, ok := b.(Record)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Key returns a canonical string for scalar values so they can be used as
// map keys for correlation. Records, lists and opaque values are not keyable.
func Key(v any) (string, bool) {
	switch t := v.(type) {
	case int64:
		return "n:" + strconv.FormatInt(t, 10), true
	case int:
		return "n:" + strconv.FormatInt(int64(t), 10), true
	case int32:
		return "n:" + strconv.FormatInt(int64(t), 10), true
	case uint64:
		return "n:" + strconv.FormatUint(t, 10), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return "n:" + strconv.FormatInt(i, 10), true
		}
	}
	if f, ok := Number(v); ok {
		return floatKey(f), true
	}
	switch t := v.(type) {
	case nil:
		return "null", true
	case string:
		return "s:" + t, true
	case bool:
		return "b:" + strconv.FormatBool(t), true
	case time.Time:
		return "t:" + strconv.FormatInt(t.UnixNano(), 10), true
	}
	return "", false
}

// floatKey renders integral floats in int64 range like integers so that 1
// and 1.0 share a key.
func floatKey(f float64) string {
	if f == math.Trunc(f) && f >= -(1<<63) && f < 1<<63 {
		return "n:" + strconv.FormatInt(int64(f), 10)
	}
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
}

// Normalize converts v into the canonical value set: integers become int64,
// floats float64, maps with string keys Record, slices []any and times UTC.
// Values outside that set are returned unchanged and treated as opaque.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64, int64:
		return v
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return float64(t)
		}
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC()
	case *regexp.Regexp:
		return t
	case Record:
		out := make(Record, len(t))
		for k, child := range t {
			out[k] = Normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Normalize(child)
		}
		return out
	case []byte:
		return t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(Record, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

// NormalizeRecord returns a normalized deep copy of r.
func NormalizeRecord(r Record) Record {
	if r == nil {
		return Record{}
	}
	return Normalize(r).(Record)
}

// Clone deep-copies a record. Opaque values are shared.
func Clone(r Record) Record {
	if r == nil {
		return nil
	}
	return cloneValue(r).(Record)
}

// CloneValue deep-copies records and lists inside v.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		out := make(Record, len(t))
		for k, child := range t {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child)
		}
		return out
	}
	return v
}
