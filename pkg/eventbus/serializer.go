package eventbus

import "errors"

// Common serialization errors
var (
	// ErrInvalidData is returned when the data cannot be serialized or deserialized
	ErrInvalidData = errors.New("invalid data for serialization")
)

// Serializer converts payloads to and from message bytes.
type Serializer interface {
	Serialize(v any) ([]byte, error)

	// Deserialize decodes data into target, which must be a pointer.
	Deserialize(data []byte, target any) error

	// ContentType returns the MIME type written to Message.ContentType.
	ContentType() string
}
