// Package schema validates records against a JSON Schema and fills in the
// defaults the schema declares.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nimburion/docstore/pkg/document"
)

// ErrInvalidSchema is returned when a schema cannot be parsed or resolved.
var ErrInvalidSchema = errors.New("invalid schema")

// ValidationError reports the first record that failed validation.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validator checks records against a resolved schema.
type Validator struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// New resolves s and returns a validator for it.
func New(s *jsonschema.Schema) (*Validator, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidSchema)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &Validator{schema: s, resolved: resolved}, nil
}

// FromJSON parses a JSON Schema document and returns a validator for it.
func FromJSON(data []byte) (*Validator, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return New(&s)
}

// Schema returns the schema the validator was built from.
func (v *Validator) Schema() *jsonschema.Schema { return v.schema }

// Validate checks every record and returns copies with schema defaults
// applied. Existing values are never overwritten. The input is not modified.
func (v *Validator) Validate(records []document.Record) ([]document.Record, error) {
	out := make([]document.Record, 0, len(records))
	for i, r := range records {
		checked, err := v.validateOne(r)
		if err != nil {
			return nil, newValidationError(i, err)
		}
		out = append(out, checked)
	}
	return out, nil
}

// ValidateRecord checks a single record.
func (v *Validator) ValidateRecord(r document.Record) (document.Record, error) {
	checked, err := v.validateOne(r)
	if err != nil {
		return nil, newValidationError(0, err)
	}
	return checked, nil
}

func (v *Validator) validateOne(r document.Record) (document.Record, error) {
	instance, err := toJSONValue(r)
	if err != nil {
		return nil, err
	}
	if err := v.resolved.ApplyDefaults(&instance); err != nil {
		return nil, err
	}
	if err := v.resolved.Validate(instance); err != nil {
		return nil, err
	}
	out := document.Clone(r)
	if out == nil {
		out = document.Record{}
	}
	mergeDefaults(out, instance)
	return out, nil
}

// toJSONValue converts r to the generic form encoding/json produces, which is
// what the schema library validates.
func toJSONValue(r document.Record) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	instance := map[string]any{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return instance, nil
}

// mergeDefaults copies keys present in defaulted but missing in dst.
func mergeDefaults(dst document.Record, defaulted map[string]any) {
	for k, dv := range defaulted {
		cur, ok := dst[k]
		if !ok {
			dst[k] = document.Normalize(dv)
			continue
		}
		nested, isRecord := cur.(document.Record)
		src, isMap := dv.(map[string]any)
		if isRecord && isMap {
			mergeDefaults(nested, src)
		}
	}
}

var propertyPattern = regexp.MustCompile(`property "([^"]+)"|"/([^"]+)"`)

func newValidationError(index int, err error) *ValidationError {
	reason := err.Error()
	field := ""
	if m := propertyPattern.FindStringSubmatch(reason); m != nil {
		field = m[1]
		if field == "" {
			field = strings.ReplaceAll(m[2], "/", ".")
		}
	}
	return &ValidationError{Index: index, Field: field, Reason: reason, Err: err}
}
