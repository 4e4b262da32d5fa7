package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nuyoahch/agent-runtime/internal/config"
)

func TestMemoryBusDeliversInOrder(t *testing.T) {
	bus := NewMemoryBus(4)
	ctx := context.Background()
	for _, typ := range []Type{AgentStarted, AgentCompiled, AgentSucceeded} {
		if err := bus.Publish(ctx, New("inv-1", "t1", typ)); err != nil {
			t.Fatalf("Publish %s: %v", typ, err)
		}
	}
	_ = bus.Close()

	var got []Type
	err := bus.Consume(ctx, func(_ context.Context, e Event) error {
		if e.InvocationID != "inv-1" || e.ID == "" || e.OccurredAt.IsZero() {
			t.Errorf("unexpected event %+v", e)
		}
		got = append(got, e.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(got) != 3 || got[0] != AgentStarted || got[2] != AgentSucceeded {
		t.Fatalf("unexpected order %v", got)
	}
	if err := bus.Publish(ctx, New("inv-1", "t1", AgentFailed)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestMemoryBusPublishNeverBlocks(t *testing.T) {
	bus := NewMemoryBus(1)
	ctx := context.Background()
	if err := bus.Publish(ctx, New("i", "t", AgentStarted)); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := bus.Publish(ctx, New("i", "t", AgentCompiled)); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}

func TestMemoryBusConsumeStopsOnCancel(t *testing.T) {
	bus := NewMemoryBus(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Consume(ctx, func(context.Context, Event) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOpenValidatesDriverSettings(t *testing.T) {
	if _, err := Open(config.EventsConfig{Driver: "redis"}); err == nil {
		t.Fatal("expected error for redis without address")
	}
	if _, err := Open(config.EventsConfig{Driver: "rabbitmq"}); err == nil {
		t.Fatal("expected error for rabbitmq without url")
	}
	if _, err := Open(config.EventsConfig{Driver: "kafka"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	bus, err := Open(config.EventsConfig{})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	_ = bus.Close()
}

func TestEventWithError(t *testing.T) {
	e := New("i", "t", AgentFailed).WithError(errors.New("boom"))
	if e.Error != "boom" {
		t.Fatalf("unexpected error field %q", e.Error)
	}
	data, err := encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := decode(data)
	if err != nil || back.Type != AgentFailed || back.Error != "boom" {
		t.Fatalf("decode = %+v, %v", back, err)
	}
}
