// Package event defines the shared, dependency-free vocabulary the rest
// of the reactive messaging core is built on: the DomainEvent envelope,
// subscriptions, handler signatures, and the typed error hierarchy.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// MetaAlreadyStored is the Metadata key a publisher sets to true when
// an event has already been durably appended through some path other
// than the bus's own persistence step (e.g. the sourcing plugin, which
// appends via AggregateStore.SaveEvents before publishing). The bus's
// publish pipeline checks this key so the same event is never stored
// twice.
const MetaAlreadyStored = "alreadyStored"

// DomainEvent is the immutable envelope every producer emits and every
// subscriber receives. Payload is intentionally untyped — strongly-typed
// producers and consumers layer on top via TypedHandler/PayloadAs.
type DomainEvent struct {
	ID            string         `json:"id" validate:"required"`
	Type          string         `json:"type" validate:"required"`
	Timestamp     int64          `json:"timestamp" validate:"required"`
	Payload       any            `json:"payload"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// New constructs a DomainEvent with a fresh ID and the current
// timestamp. Timestamp is milliseconds since epoch, set once at
// construction and never mutated afterward.
func New(eventType string, payload any) DomainEvent {
	return DomainEvent{
		ID:        NewID(),
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Validate checks the invariants spec.md places on a DomainEvent: a
// non-empty id, a non-empty type (type is used as a map key
// throughout the bus and store, so an empty type can never be routed),
// and a non-zero timestamp.
func (e DomainEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return NewValidationError("DomainEvent", err.Error())
	}
	return nil
}

// WithMetadata returns a shallow copy of e with key set in Metadata.
// Used by the bus/store/router to stamp replay and routing markers
// without mutating the caller's original event.
func (e DomainEvent) WithMetadata(key string, value any) DomainEvent {
	clone := e
	clone.Metadata = make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		clone.Metadata[k] = v
	}
	clone.Metadata[key] = value
	return clone
}

// WithType returns a shallow copy of e with a new Type and a fresh ID —
// used by the router when republishing a derived event, and by
// EventBus when re-entering publish for a router-produced type.
func (e DomainEvent) WithType(newType string) DomainEvent {
	clone := e
	clone.Type = newType
	clone.ID = NewID()
	return clone
}

// WithPayload returns a shallow copy of e with a replaced Payload, used
// by the bus when a BEFORE_PUBLISH hook rewrites the payload.
func (e DomainEvent) WithPayload(payload any) DomainEvent {
	clone := e
	clone.Payload = payload
	return clone
}

// DebugYAML renders the event as YAML for diagnostic log lines. It is
// never written to disk — this system has no on-disk format of its own
// — it exists purely so a Warn/Error log line can dump a readable
// snapshot of the event that caused it.
func (e DomainEvent) DebugYAML() string {
	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Sprintf("<unmarshalable event %s: %v>", e.ID, err)
	}
	return string(data)
}

// PayloadAs extracts a typed payload from an erased DomainEvent. It
// returns an error rather than panicking so typed consumers can report
// a clean HandlerError instead of crashing the dispatch loop.
func PayloadAs[T any](e DomainEvent) (T, error) {
	var zero T
	v, ok := e.Payload.(T)
	if !ok {
		return zero, NewValidationError("payload", fmt.Sprintf("expected %T, got %T", zero, e.Payload))
	}
	return v, nil
}

// Handler is the erased subscriber signature the bus dispatches to.
// Per spec.md's fixed contract, handlers receive the payload, not the
// envelope — the envelope is bus metadata.
type Handler func(ctx context.Context, payload any) error

// TypedHandler adapts a statically-typed handler function into the
// erased Handler the bus stores. A payload that doesn't assert to T
// is reported as a HandlerError rather than silently ignored.
func TypedHandler[T any](fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, payload any) error {
		typed, ok := payload.(T)
		if !ok {
			var zero T
			return NewValidationError("payload", fmt.Sprintf("expected %T, got %T", zero, payload))
		}
		return fn(ctx, typed)
	}
}

// Filter is a predicate over the full event, used both as a
// subscription's own filter and as a bus-wide global filter.
type Filter func(DomainEvent) bool

// Router inspects an event and returns the additional event types a
// copy of it should be republished as.
type Router func(DomainEvent) []string
