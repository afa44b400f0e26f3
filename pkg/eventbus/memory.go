package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrProducerClosed is returned when publishing to a closed producer.
var ErrProducerClosed = errors.New("producer closed")

// MemoryProducer delivers messages to in-process handlers and keeps a copy of
// everything published. It backs local development and tests.
type MemoryProducer struct {
	mu        sync.RWMutex
	handlers  map[string]map[uint64]MessageHandler
	published map[string][]*Message
	nextID    uint64
	closed    bool
}

// NewMemoryProducer creates an empty in-process producer.
func NewMemoryProducer() *MemoryProducer {
	return &MemoryProducer{
		handlers:  make(map[string]map[uint64]MessageHandler),
		published: make(map[string][]*Message),
	}
}

// Publish records message and hands it to every handler of topic. The first
// handler error is returned after all handlers ran.
func (p *MemoryProducer) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidData)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.published[topic] = append(p.published[topic], message)
	handlers := make([]MessageHandler, 0, len(p.handlers[topic]))
	for _, h := range p.handlers[topic] {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	var firstErr error
	for _, h := range handlers {
		if err := h(ctx, message); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("handler for topic %s: %w", topic, err)
		}
	}
	return firstErr
}

// PublishBatch publishes messages in order, stopping at the first failure.
func (p *MemoryProducer) PublishBatch(ctx context.Context, topic string, messages []*Message) error {
	for i, m := range messages {
		if err := p.Publish(ctx, topic, m); err != nil {
			return fmt.Errorf("publish batch message %d: %w", i, err)
		}
	}
	return nil
}

// Subscribe registers handler for topic and returns a function that removes it.
func (p *MemoryProducer) Subscribe(topic string, handler MessageHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	if p.handlers[topic] == nil {
		p.handlers[topic] = make(map[uint64]MessageHandler)
	}
	p.handlers[topic][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.handlers[topic], id)
			if len(p.handlers[topic]) == 0 {
				delete(p.handlers, topic)
			}
		})
	}
}

// Published returns the messages published to topic so far.
func (p *MemoryProducer) Published(topic string) []*Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Message, len(p.published[topic]))
	copy(out, p.published[topic])
	return out
}

// Close stops the producer. It is safe to call more than once.
func (p *MemoryProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.handlers = make(map[string]map[uint64]MessageHandler)
	return nil
}
