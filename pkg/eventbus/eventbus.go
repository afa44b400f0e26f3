// Package eventbus defines the publishing contract the store uses to hand
// change notifications to a message broker, plus an in-process producer.
package eventbus

import (
	"context"
	"time"
)

// Producer publishes messages to topics.
type Producer interface {
	// Publish sends a single message to the specified topic.
	Publish(ctx context.Context, topic string, message *Message) error

	// PublishBatch sends multiple messages to the specified topic.
	// Returns an error if any message in the batch fails to publish.
	PublishBatch(ctx context.Context, topic string, messages []*Message) error

	// Close shuts the producer down. Publishing after Close fails.
	Close() error
}

// Message is one published notification.
type Message struct {
	// ID is a unique identifier for the message.
	ID string

	// Key groups messages that must stay ordered, usually the collection name.
	Key string

	// Value is the serialized payload.
	Value []byte

	// Headers carries metadata such as the event name.
	Headers map[string]string

	// ContentType indicates the serialization format of Value.
	ContentType string

	// Timestamp is when the message was created.
	Timestamp time.Time
}

// MessageHandler processes a delivered message.
type MessageHandler func(ctx context.Context, msg *Message) error
