package sourcing

import "github.com/kestrelbyte/reactor/pkg/event"

// Event is a versioned fact applied to a single aggregate, distinct
// from event.DomainEvent: it carries the aggregate-local version
// number an AggregateRoot advances by, and is translated to a
// DomainEvent only when it leaves the aggregate boundary (SaveAggregate).
type Event struct {
	Type        string
	AggregateID string
	Version     int
	Payload     any
}

// AggregateRoot is the consistency boundary the plugin reconstructs
// from a stream of versioned events. Implementations are provided by
// the caller via an AggregateFactory; ApplyEvent must advance Version
// to exactly e.Version and must accept only contiguous versions
// starting at the current version+1.
type AggregateRoot interface {
	ID() string
	Version() int
	UncommittedEvents() []Event
	ApplyEvent(e Event)
	ClearUncommitted()

	// Restore seeds the aggregate directly from a snapshot's state and
	// version, bypassing ApplyEvent — only events with a higher version
	// are folded in afterward.
	Restore(state any, version int)
}

// AggregateFactory constructs a fresh, version-0 AggregateRoot for id.
type AggregateFactory func(id string) AggregateRoot

// CommandHandler turns a Command into state changes recorded as
// uncommitted events on the returned aggregate.
type CommandHandler func(cmd Command) (AggregateRoot, error)

// Command is the envelope spec.md §4.4 and §6 define for
// command.<Type> events.
type Command struct {
	Type        string `json:"type"`
	AggregateID string `json:"aggregateId"`
	Payload     any    `json:"payload"`
	Timestamp   int64  `json:"timestamp"`
}

// toDomainEvent lifts an aggregate-local Event into the bus's
// DomainEvent envelope, stamping the metadata conventions
// pkg/store.InMemoryStore's AggregateStore relies on. It also marks the
// event as already stored: SaveAggregate appends it to the aggregate
// store itself before publishing, so the bus's own persistence step
// must not append it a second time.
func toDomainEvent(e Event) event.DomainEvent {
	de := event.New("event."+e.Type, e.Payload)
	de.Metadata = map[string]any{
		"aggregateId":          e.AggregateID,
		"version":              e.Version,
		event.MetaAlreadyStored: true,
	}
	return de
}
