package events

import (
	"context"
	"testing"

	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/eventbus"
)

func TestNewEventBusEmitter_RequiresProducer(t *testing.T) {
	if _, err := NewEventBusEmitter(nil, EventBusConfig{}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestEventBusEmitter_PublishesToCollectionTopic(t *testing.T) {
	producer := eventbus.NewMemoryProducer()
	emitter, err := NewEventBusEmitter(producer, EventBusConfig{})
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	if got := emitter.Topic("users"); got != "docstore.users" {
		t.Fatalf("unexpected topic %q", got)
	}

	rec := document.Record{"_id": "u1", "age": int64(36)}
	if err := emitter.Emit(context.Background(), New(Insert, "users", rec)); err != nil {
		t.Fatalf("emit: %v", err)
	}

	msgs := producer.Published("docstore.users")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Key != "users" || msg.Headers["event"] != "insert" || msg.ContentType != "application/json" {
		t.Fatalf("unexpected message metadata: %+v", msg)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Fatalf("message was not stamped: %+v", msg)
	}

	evt, err := Decode(nil, msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Name != Insert || evt.Count != 1 || evt.ID != msg.ID {
		t.Fatalf("unexpected decoded event: %+v", evt)
	}
	if evt.Records[0]["age"] != int64(36) {
		t.Fatalf("age decoded as %#v, want int64(36)", evt.Records[0]["age"])
	}
}

func TestEventBusEmitter_CustomPrefixAndClose(t *testing.T) {
	producer := eventbus.NewMemoryProducer()
	emitter, err := NewEventBusEmitter(producer, EventBusConfig{TopicPrefix: " app "})
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	if got := emitter.Topic("orders"); got != "app.orders" {
		t.Fatalf("unexpected topic %q", got)
	}
	if err := emitter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := emitter.Emit(context.Background(), New(Remove, "orders")); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestDecode_NilMessage(t *testing.T) {
	if _, err := Decode(nil, nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}
