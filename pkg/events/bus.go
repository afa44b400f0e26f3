package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nimburion/docstore/pkg/observability/logger"
)

// ErrBusClosed is returned when emitting to a closed bus.
var ErrBusClosed = errors.New("events: bus closed")

// Handler receives events delivered by a Bus.
type Handler func(Event)

// Subscription represents a cancelable bus subscription.
type Subscription interface {
	Close() error
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBuffer makes delivery asynchronous on a dispatch goroutine, with n
// sizing the initial queue. Emit never blocks in this mode, so handlers may
// emit again. A buffer of zero delivers on the emitting goroutine.
func WithBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithBusLogger sets the logger used for dispatch diagnostics.
func WithBusLogger(log logger.Logger) BusOption {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// Bus is an in-process pub/sub for events keyed by name. Subscribing to
// Wildcard receives every event.
type Bus struct {
	handlersMu sync.RWMutex
	handlers   map[string]map[uint64]Handler
	nextID     uint64

	mu      sync.Mutex
	closed  bool
	async   bool
	pending []Event
	wake    chan struct{}
	wg      sync.WaitGroup

	buffer int
	log    logger.Logger
	now    func() time.Time
}

// NewBus creates a bus. With WithBuffer it starts a dispatch goroutine that
// Close stops after draining the queue.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[string]map[uint64]Handler),
		log:      logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.buffer > 0 {
		b.async = true
		b.pending = make([]Event, 0, b.buffer)
		b.wake = make(chan struct{}, 1)
		b.wg.Add(1)
		go b.run()
	}
	return b
}

// Emit delivers event to the handlers of its name and to wildcard handlers.
func (b *Bus) Emit(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event.normalize(b.now())

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	if !b.async {
		b.mu.Unlock()
		b.dispatch(event)
		return nil
	}
	b.pending = append(b.pending, event)
	b.mu.Unlock()
	b.signal()
	return nil
}

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers handler for events named name, or all events when name
// is Wildcard.
func (b *Bus) Subscribe(name string, handler Handler) Subscription {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.nextID++
	id := b.nextID
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[uint64]Handler)
	}
	b.handlers[name][id] = handler
	return &busSubscription{
		closeFn: func() {
			b.handlersMu.Lock()
			defer b.handlersMu.Unlock()
			delete(b.handlers[name], id)
			if len(b.handlers[name]) == 0 {
				delete(b.handlers, name)
			}
		},
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
// Events emitted by handlers during the drain are rejected.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	if b.async {
		b.signal()
		b.wg.Wait()
	}
	return nil
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		closed := b.closed
		b.mu.Unlock()

		for _, event := range batch {
			b.dispatch(event)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-b.wake
	}
}

func (b *Bus) dispatch(event Event) {
	b.handlersMu.RLock()
	named := b.handlers[string(event.Name)]
	wild := b.handlers[Wildcard]
	handlers := make([]Handler, 0, len(named)+len(wild))
	for _, h := range named {
		handlers = append(handlers, h)
	}
	for _, h := range wild {
		handlers = append(handlers, h)
	}
	b.handlersMu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	b.log.Debug("dispatching event",
		"event", string(event.Name),
		"collection", event.Collection,
		"handlers", len(handlers),
	)
	for _, h := range handlers {
		h(event)
	}
}

type busSubscription struct {
	once    sync.Once
	closeFn func()
}

func (s *busSubscription) Close() error {
	s.once.Do(s.closeFn)
	return nil
}
