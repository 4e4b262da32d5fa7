// Package events publishes agent lifecycle events to an in-process buffer,
// a redis list or a RabbitMQ queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nuyoahch/agent-runtime/internal/config"
)

// Type names a lifecycle transition.
type Type string

const (
	AgentStarted   Type = "agent.started"
	AgentCompiled  Type = "agent.compiled"
	AgentSucceeded Type = "agent.succeeded"
	AgentFailed    Type = "agent.failed"
)

// Event is one lifecycle transition of an agent invocation.
type Event struct {
	ID           string    `json:"id"`
	InvocationID string    `json:"invocation_id"`
	ThreadID     string    `json:"thread_id"`
	Type         Type      `json:"type"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// New stamps an event with a fresh id and the current time.
func New(invocationID, threadID string, typ Type) Event {
	return Event{
		ID:           uuid.NewString(),
		InvocationID: invocationID,
		ThreadID:     threadID,
		Type:         typ,
		OccurredAt:   time.Now().UTC(),
	}
}

// WithError attaches a failure message.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Handler processes one consumed event.
type Handler func(ctx context.Context, event Event) error

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Consumer delivers events to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Bus is both.
type Bus interface {
	Publisher
	Consumer
}

// Open builds the bus selected by cfg.Driver.
func Open(cfg config.EventsConfig) (Bus, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryBus(cfg.Buffer), nil
	case "redis":
		return NewRedisBus(RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Key:       cfg.Redis.Key,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return NewRabbitMQBus(RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.Driver)
	}
}

func encode(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}
