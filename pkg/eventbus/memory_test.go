package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryProducer_PublishAndUnsubscribe(t *testing.T) {
	p := NewMemoryProducer()
	ctx := context.Background()

	var received []string
	unsubscribe := p.Subscribe("docstore.users", func(_ context.Context, msg *Message) error {
		received = append(received, msg.ID)
		return nil
	})

	if err := p.Publish(ctx, "docstore.users", &Message{ID: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(received) != 1 || received[0] != "1" {
		t.Fatalf("unexpected received messages: %+v", received)
	}

	unsubscribe()
	unsubscribe()

	if err := p.Publish(ctx, "docstore.users", &Message{ID: "2"}); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected no new messages after unsubscribe, got %+v", received)
	}
	if got := p.Published("docstore.users"); len(got) != 2 {
		t.Fatalf("expected 2 recorded messages, got %d", len(got))
	}
	if got := p.Published("other"); len(got) != 0 {
		t.Fatalf("expected no messages on other topic, got %d", len(got))
	}
}

func TestMemoryProducer_HandlerError(t *testing.T) {
	p := NewMemoryProducer()
	boom := errors.New("boom")
	p.Subscribe("t", func(context.Context, *Message) error { return boom })

	if err := p.Publish(context.Background(), "t", &Message{ID: "1"}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestMemoryProducer_PublishBatchAndClose(t *testing.T) {
	p := NewMemoryProducer()
	ctx := context.Background()

	batch := []*Message{{ID: "a"}, {ID: "b"}}
	if err := p.PublishBatch(ctx, "t", batch); err != nil {
		t.Fatalf("publish batch: %v", err)
	}
	if got := p.Published("t"); len(got) != 2 || got[1].ID != "b" {
		t.Fatalf("unexpected batch result: %+v", got)
	}

	if err := p.PublishBatch(ctx, "t", []*Message{{ID: "c"}, nil}); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for nil message, got %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close idempotency: %v", err)
	}
	if err := p.Publish(ctx, "t", &Message{ID: "d"}); !errors.Is(err, ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
}
