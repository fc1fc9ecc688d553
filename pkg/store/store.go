// Package store provides append-only, in-memory event storage with
// three simultaneous indexes (insertion order, type, correlation id),
// an optional snapshot surface for event sourcing, and EventSource, a
// façade that replays stored events back through a bus.
package store

import (
	"context"

	"github.com/kestrelbyte/reactor/pkg/event"
)

// EventStore is the append-only storage contract spec.md §4.3 places
// on a bus's persistence layer.
type EventStore interface {
	// StoreEvent appends e; must be O(1) amortised.
	StoreEvent(ctx context.Context, e event.DomainEvent) error

	// GetEventsByType returns events of the given type whose timestamp
	// (ms since epoch) falls within [start, end] inclusive. A nil bound
	// is open-ended.
	GetEventsByType(ctx context.Context, eventType string, start, end *int64) ([]event.DomainEvent, error)

	// GetEventsByCorrelationID returns every event whose CorrelationID
	// or metadata["correlationId"] equals id.
	GetEventsByCorrelationID(ctx context.Context, correlationID string) ([]event.DomainEvent, error)

	// GetAllEvents returns every stored event within [start, end].
	GetAllEvents(ctx context.Context, start, end *int64) ([]event.DomainEvent, error)

	// Count returns the number of stored events (diagnostic/test use).
	Count() int

	// Clear removes every stored event and index (diagnostic/test use).
	Clear()
}

// SnapshotStore is the optional snapshot surface a store may provide
// to speed up aggregate reconstruction.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	GetLatestSnapshot(ctx context.Context, aggregateID string) (Snapshot, bool, error)
}

// AggregateStore is the optional per-aggregate event log a store may
// provide for the event-sourcing plugin: an optimistic-concurrency
// append (SaveEvents) and an ordered read-back (LoadEvents).
type AggregateStore interface {
	// SaveEvents appends events for aggregateID, rejecting the batch
	// unless its lowest event's metadata["version"] is exactly
	// expectedVersion+1 and versions are contiguous thereafter.
	SaveEvents(ctx context.Context, aggregateID string, expectedVersion int, events []event.DomainEvent) error

	// LoadEvents returns every event stored for aggregateID, ascending
	// by metadata["version"].
	LoadEvents(ctx context.Context, aggregateID string) ([]event.DomainEvent, error)

	// CurrentVersion returns the highest version stored for
	// aggregateID, or 0 if none.
	CurrentVersion(aggregateID string) int
}

// Snapshot is a compact materialization of aggregate state at a known
// version, used to shortcut replay.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       int
	State         any
	Timestamp     int64
}

// DebugYAML renders the snapshot as YAML for diagnostic log lines,
// mirroring event.DomainEvent.DebugYAML.
func (s Snapshot) DebugYAML() string {
	return debugYAML(s)
}
