package events

import (
	"context"
	"errors"
	"time"
)

// Emitter receives collection events.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event) error

func (f EmitterFunc) Emit(ctx context.Context, event Event) error { return f(ctx, event) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(context.Context, Event) error { return nil })

// Fanout emits every event to each of its emitters in order and joins their
// errors. All emitters see the same event ID and timestamp.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, event Event) error {
	event.normalize(time.Now())
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
