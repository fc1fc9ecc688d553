package sourcing

// Base is an embeddable AggregateRoot scaffold: it tracks id, version,
// and the uncommitted buffer so a concrete aggregate only has to
// implement its own state transitions. Mirrors the extension
// package's Base pattern for the same reason — most of the interface
// is bookkeeping, not domain logic.
type Base struct {
	id      string
	version int
	pending []Event
}

// NewBase constructs a fresh, version-0 Base for id.
func NewBase(id string) Base {
	return Base{id: id}
}

func (b *Base) ID() string               { return b.id }
func (b *Base) Version() int             { return b.version }
func (b *Base) UncommittedEvents() []Event { return b.pending }
func (b *Base) ClearUncommitted()        { b.pending = nil }

// Record appends a locally-generated event to the uncommitted buffer,
// advancing the in-memory version. Concrete aggregates call this from
// their command-handling methods; it does not fold the event into
// state — that's ApplyEvent's job, invoked separately so replay and
// live command handling share one code path.
func (b *Base) Record(eventType string, payload any) Event {
	b.version++
	e := Event{Type: eventType, AggregateID: b.id, Version: b.version, Payload: payload}
	b.pending = append(b.pending, e)
	return e
}

// AdvanceVersion sets the tracked version to match an applied event,
// used by ApplyEvent implementations and by Restore.
func (b *Base) AdvanceVersion(version int) { b.version = version }

// RestoreBase seeds id/version directly from a snapshot.
func (b *Base) RestoreBase(id string, version int) {
	b.id = id
	b.version = version
}
