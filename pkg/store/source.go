package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelbyte/reactor/pkg/event"
)

// Publisher is the minimal bus surface EventSource replays onto. It is
// declared here rather than imported from pkg/bus to avoid a cycle
// (pkg/bus already depends on this package for persistence).
type Publisher interface {
	Publish(ctx context.Context, e event.DomainEvent) error
}

// EventSource replays events already captured in an EventStore back
// through a Publisher, letting a fresh subscriber (or a recovering one)
// catch up on history without the original producers re-emitting
// anything (spec.md §4.3).
type EventSource struct {
	store     EventStore
	publisher Publisher
	logger    *slog.Logger
}

// NewEventSource wires a store to the bus it will replay onto.
func NewEventSource(s EventStore, publisher Publisher, logger *slog.Logger) *EventSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSource{store: s, publisher: publisher, logger: logger}
}

// ReplayEvents re-publishes every stored event of eventType within
// [start, end], ascending by timestamp, sequentially awaiting each one
// before moving to the next.
func (src *EventSource) ReplayEvents(ctx context.Context, eventType string, start, end *int64) error {
	events, err := src.store.GetEventsByType(ctx, eventType, start, end)
	if err != nil {
		return &event.StorageError{Op: "replayEvents", Err: err}
	}
	return src.replay(ctx, events)
}

// ReplayByCorrelationID re-publishes every event sharing correlationID,
// ascending by timestamp.
func (src *EventSource) ReplayByCorrelationID(ctx context.Context, correlationID string) error {
	events, err := src.store.GetEventsByCorrelationID(ctx, correlationID)
	if err != nil {
		return &event.StorageError{Op: "replayByCorrelationId", Err: err}
	}
	return src.replay(ctx, events)
}

// ReplayAll re-publishes every stored event within [start, end],
// ascending by timestamp. Useful for rebuilding a fresh subscriber's
// projection from the whole history.
func (src *EventSource) ReplayAll(ctx context.Context, start, end *int64) error {
	events, err := src.store.GetAllEvents(ctx, start, end)
	if err != nil {
		return &event.StorageError{Op: "replayAll", Err: err}
	}
	return src.replay(ctx, events)
}

func (src *EventSource) replay(ctx context.Context, events []event.DomainEvent) error {
	now := time.Now().UnixMilli()
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		replayed := e.WithMetadata("replayed", true).WithMetadata("replayTimestamp", now)
		if err := src.publisher.Publish(ctx, replayed); err != nil {
			src.logger.Error("replay publish failed", "event_id", e.ID, "event_type", e.Type, "error", err)
			return err
		}
	}
	return nil
}
