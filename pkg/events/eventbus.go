package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/eventbus"
)

// DefaultTopicPrefix is prepended to the collection name to form the topic.
const DefaultTopicPrefix = "docstore"

// EventBusConfig configures an EventBusEmitter.
type EventBusConfig struct {
	TopicPrefix      string
	OperationTimeout time.Duration
	Serializer       eventbus.Serializer
}

// EventBusEmitter publishes events to a message broker through an
// eventbus.Producer. Each collection has its own topic.
type EventBusEmitter struct {
	producer   eventbus.Producer
	serializer eventbus.Serializer
	topicPref  string
	timeout    time.Duration
}

// NewEventBusEmitter wraps producer.
func NewEventBusEmitter(producer eventbus.Producer, cfg EventBusConfig) (*EventBusEmitter, error) {
	if producer == nil {
		return nil, fmt.Errorf("eventbus producer is required")
	}
	prefix := strings.TrimSpace(cfg.TopicPrefix)
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	serializer := cfg.Serializer
	if serializer == nil {
		serializer = eventbus.NewJSONSerializer()
	}
	return &EventBusEmitter{
		producer:   producer,
		serializer: serializer,
		topicPref:  prefix,
		timeout:    cfg.OperationTimeout,
	}, nil
}

// Emit serializes event and publishes it to the collection topic.
func (e *EventBusEmitter) Emit(ctx context.Context, event Event) error {
	event.normalize(time.Now())
	raw, err := e.serializer.Serialize(event)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", event.Name, err)
	}
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.producer.Publish(cctx, e.Topic(event.Collection), &eventbus.Message{
		ID:          event.ID,
		Key:         event.Collection,
		Value:       raw,
		Headers:     map[string]string{"event": string(event.Name), "collection": event.Collection},
		ContentType: e.serializer.ContentType(),
		Timestamp:   event.Timestamp,
	})
}

// Topic returns the topic events of collection are published to.
func (e *EventBusEmitter) Topic(collection string) string {
	return fmt.Sprintf("%s.%s", e.topicPref, collection)
}

// Close closes the underlying producer.
func (e *EventBusEmitter) Close() error {
	return e.producer.Close()
}

// Decode turns a published message back into an event.
func Decode(serializer eventbus.Serializer, msg *eventbus.Message) (Event, error) {
	if msg == nil {
		return Event{}, fmt.Errorf("%w: nil message", eventbus.ErrInvalidData)
	}
	if serializer == nil {
		serializer = eventbus.NewJSONSerializer()
	}
	var evt Event
	if err := serializer.Deserialize(msg.Value, &evt); err != nil {
		return Event{}, err
	}
	for i, r := range evt.Records {
		evt.Records[i] = document.NormalizeRecord(r)
	}
	return evt, nil
}
