package eventbus

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONSerializer encodes payloads with encoding/json.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize converts v to JSON bytes.
func (s *JSONSerializer) Serialize(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: cannot serialize nil value", ErrInvalidData)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json serialization failed: %w", err)
	}
	return data, nil
}

// Deserialize decodes JSON into target. Numbers decode as json.Number so
// integer payloads keep their precision.
func (s *JSONSerializer) Deserialize(data []byte, target any) error {
	if target == nil {
		return fmt.Errorf("%w: target cannot be nil", ErrInvalidData)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: cannot deserialize empty data", ErrInvalidData)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("json deserialization failed: %w", err)
	}
	return nil
}

// ContentType returns the MIME type for JSON serialization.
func (s *JSONSerializer) ContentType() string {
	return "application/json"
}
