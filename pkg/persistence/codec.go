// Package persistence encodes collection snapshots and moves them to and from
// a snapshot store.
package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nimburion/docstore/pkg/document"
)

// FormatVersion is the snapshot container version written by BSONCodec.
const FormatVersion = 1

// Extension is appended to collection names to form snapshot names.
const Extension = ".bson"

var (
	// ErrCorruptSnapshot is returned when a snapshot payload cannot be decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	// ErrUnsupportedValue is returned when a record holds a value the
	// container cannot represent.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// Snapshot is the persisted state of one collection.
type Snapshot struct {
	Collection string
	Version    int
	CreatedAt  time.Time
	Records    []document.Record
}

// Codec converts snapshots to and from a byte stream.
type Codec interface {
	Encode(w io.Writer, snap Snapshot) error
	Decode(r io.Reader) (Snapshot, error)
	// Extension is the file extension of encoded snapshots, including the dot.
	Extension() string
}

// BSONCodec writes snapshots as a single BSON document:
//
//	{collection, version, created_at, count, records: [...]}
//
// Times are stored as BSON datetimes and keep millisecond precision.
type BSONCodec struct{}

type container struct {
	Collection string     `bson:"collection"`
	Version    int32      `bson:"version"`
	CreatedAt  time.Time  `bson:"created_at"`
	Count      int64      `bson:"count"`
	Records    []bson.Raw `bson:"records"`
}

// Extension implements Codec.
func (BSONCodec) Extension() string { return Extension }

// Encode implements Codec.
func (BSONCodec) Encode(w io.Writer, snap Snapshot) error {
	c := container{
		Collection: snap.Collection,
		Version:    FormatVersion,
		CreatedAt:  snap.CreatedAt.UTC(),
		Count:      int64(len(snap.Records)),
		Records:    make([]bson.Raw, 0, len(snap.Records)),
	}
	for i, r := range snap.Records {
		doc, err := toBSON(document.NormalizeRecord(r))
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		raw, err := bson.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		c.Records = append(c.Records, raw)
	}

	payload, err := bson.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Decode implements Codec. Decoded records are normalized.
func (BSONCodec) Decode(r io.Reader) (Snapshot, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	if len(payload) == 0 {
		return Snapshot{}, fmt.Errorf("%w: empty payload", ErrCorruptSnapshot)
	}
	if err := bson.Raw(payload).Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	var c container
	if err := bson.Unmarshal(payload, &c); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if c.Version < 1 || c.Version > FormatVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported format version %d", ErrCorruptSnapshot, c.Version)
	}
	if c.Count != int64(len(c.Records)) {
		return Snapshot{}, fmt.Errorf("%w: header counts %d records, found %d", ErrCorruptSnapshot, c.Count, len(c.Records))
	}

	snap := Snapshot{
		Collection: c.Collection,
		Version:    int(c.Version),
		CreatedAt:  c.CreatedAt.UTC(),
		Records:    make([]document.Record, 0, len(c.Records)),
	}
	for i, raw := range c.Records {
		var d bson.D
		if err := bson.Unmarshal(raw, &d); err != nil {
			return Snapshot{}, fmt.Errorf("%w: record %d: %v", ErrCorruptSnapshot, i, err)
		}
		rec, ok := fromBSON(d).(document.Record)
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: record %d is not a document", ErrCorruptSnapshot, i)
		}
		snap.Records = append(snap.Records, document.NormalizeRecord(rec))
	}
	return snap, nil
}

// EncodeBytes encodes snap with codec into a byte slice.
func EncodeBytes(codec Codec, snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toBSON maps a normalized value onto a BSON-encodable one.
func toBSON(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, int64, float64, []byte:
		return t, nil
	case time.Time:
		return primitive.NewDateTimeFromTime(t), nil
	case *regexp.Regexp:
		return primitive.Regex{Pattern: t.String()}, nil
	case document.Record:
		out := make(bson.M, len(t))
		for k, child := range t {
			enc, err := toBSON(child)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	case []any:
		out := make(bson.A, len(t))
		for i, child := range t {
			enc, err := toBSON(child)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// fromBSON maps decoded BSON values back onto the record value set.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.D:
		out := make(document.Record, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.M:
		out := make(document.Record, len(t))
		for k, child := range t {
			out[k] = fromBSON(child)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = fromBSON(child)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Regex:
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return t.Pattern
		}
		return re
	case primitive.Binary:
		return t.Data
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		return t.String()
	case primitive.Null, primitive.Undefined:
		return nil
	case int32:
		return int64(t)
	}
	return v
}
