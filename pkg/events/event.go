// Package events publishes collection change notifications to in-process
// subscribers and to message brokers.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimburion/docstore/pkg/document"
)

// Name identifies what happened to a collection.
type Name string

// Event names
const (
	Insert      Name = "insert"
	Update      Name = "update"
	Remove      Name = "remove"
	Serialize   Name = "serialize"
	Deserialize Name = "deserialize"
	Error       Name = "error"
)

// Wildcard subscribes to every event name.
const Wildcard = "*"

// Event is one collection notification. Records holds the affected records
// for insert, update and remove, Error the failure message for error events.
type Event struct {
	ID         string            `json:"id"`
	Name       Name              `json:"name"`
	Collection string            `json:"collection"`
	Records    []document.Record `json:"records,omitempty"`
	Count      int               `json:"count"`
	Error      string            `json:"error,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// New builds an event for collection carrying records.
func New(name Name, collection string, records ...document.Record) Event {
	return Event{
		Name:       name,
		Collection: collection,
		Records:    records,
		Count:      len(records),
	}
}

// Failure builds an error event for collection.
func Failure(collection string, err error) Event {
	e := Event{Name: Error, Collection: collection}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func (e *Event) normalize(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
}
