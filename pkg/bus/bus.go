// Package bus implements the Event Bus: the central dispatch engine
// that routes published events to matching, live subscriptions in
// priority order, applying global filters, extension hooks,
// backpressure, storage, and routers (spec.md §4.1).
package bus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelbyte/reactor/pkg/backpressure"
	"github.com/kestrelbyte/reactor/pkg/event"
	"github.com/kestrelbyte/reactor/pkg/extension"
	"github.com/kestrelbyte/reactor/pkg/store"
)

// Publisher is the minimal interface EventSource and the plugins depend
// on, so they don't need the whole EventBus to replay or emit events.
type Publisher interface {
	Publish(ctx context.Context, e event.DomainEvent) error
}

// EventBus is the reactive messaging core's central dispatch engine.
// A zero-value EventBus is not usable; construct with New.
type EventBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*event.Subscription // eventType -> subs, insertion order
	subIndex      map[string]string                // subscriptionID -> eventType

	filters []event.Filter
	routers []event.Router

	backpressureMu sync.RWMutex
	backpressures  map[string]backpressure.Strategy
	inFlight       sync.Map // eventType -> *atomic.Int64

	extensions *extension.System

	storeMu            sync.RWMutex
	eventStore         store.EventStore
	persistenceEnabled bool

	closed   atomic.Bool
	inflight sync.WaitGroup

	logger *slog.Logger
}

// Option configures an EventBus at construction time.
type Option func(*EventBus)

// WithExtensionSystem wires an ExtensionSystem into the publish
// pipeline's BEFORE/AFTER_PUBLISH hooks.
func WithExtensionSystem(system *extension.System) Option {
	return func(b *EventBus) { b.extensions = system }
}

// WithStore enables persistence at construction time, equivalent to
// calling EnablePersistence immediately after New.
func WithStore(s store.EventStore) Option {
	return func(b *EventBus) {
		b.eventStore = s
		b.persistenceEnabled = s != nil
	}
}

// New creates an empty EventBus.
func New(logger *slog.Logger, opts ...Option) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &EventBus{
		subscriptions: make(map[string][]*event.Subscription),
		subIndex:      make(map[string]string),
		backpressures: make(map[string]backpressure.Strategy),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for eventType. Per spec.md §4.1 this
// never fails.
func (b *EventBus) Subscribe(eventType string, handler event.Handler, opts ...event.SubscriptionOptions) *event.Subscription {
	return b.subscribe(eventType, nil, handler, opts...)
}

// SubscribeWithFilter registers handler for eventType, additionally
// gated by filter, evaluated before the handler runs.
func (b *EventBus) SubscribeWithFilter(eventType string, filter event.Filter, handler event.Handler, opts ...event.SubscriptionOptions) *event.Subscription {
	return b.subscribe(eventType, filter, handler, opts...)
}

func (b *EventBus) subscribe(eventType string, filter event.Filter, handler event.Handler, opts ...event.SubscriptionOptions) *event.Subscription {
	options := event.DefaultSubscriptionOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	sub := &event.Subscription{
		ID:        event.NewID(),
		EventType: eventType,
		Handler:   handler,
		Filter:    filter,
		Options:   options,
	}

	b.mu.Lock()
	b.subscriptions[eventType] = append(b.subscriptions[eventType], sub)
	b.subIndex[sub.ID] = eventType
	b.mu.Unlock()

	b.logger.Debug("subscription created",
		"subscription_id", sub.ID, "event_type", eventType, "priority", options.Priority, "once", options.Once)

	return sub
}

// Unsubscribe removes a subscription by id. It reports whether a
// subscription was actually removed.
func (b *EventBus) Unsubscribe(subscriptionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventType, ok := b.subIndex[subscriptionID]
	if !ok {
		return false
	}
	delete(b.subIndex, subscriptionID)
	b.subscriptions[eventType] = removeByID(b.subscriptions[eventType], subscriptionID)
	return true
}

// UnsubscribeHandler removes the first subscription on eventType whose
// handler has the same code pointer as handler (see handlerPointer).
func (b *EventBus) UnsubscribeHandler(eventType string, handler event.Handler) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[eventType]
	target := handlerPointer(handler)
	for i, sub := range subs {
		if handlerPointer(sub.Handler) == target {
			delete(b.subIndex, sub.ID)
			b.subscriptions[eventType] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// ClearSubscriptions removes every subscription for eventType.
func (b *EventBus) ClearSubscriptions(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions[eventType] {
		delete(b.subIndex, sub.ID)
	}
	delete(b.subscriptions, eventType)
}

// ClearAllSubscriptions removes every subscription on the bus.
func (b *EventBus) ClearAllSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscriptions = make(map[string][]*event.Subscription)
	b.subIndex = make(map[string]string)
}

// SubscriberCount returns the number of live subscriptions for eventType.
func (b *EventBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions[eventType])
}

// HasSubscribers reports whether eventType has any live subscriptions.
func (b *EventBus) HasSubscribers(eventType string) bool {
	return b.SubscriberCount(eventType) > 0
}

// AddEventFilter appends a global filter that can veto any event before
// it reaches the extension pipeline or any subscriber.
func (b *EventBus) AddEventFilter(fn event.Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, fn)
}

// AddEventRouter appends a router consulted after dispatch on every
// publish, to fan out derived events to additional types.
func (b *EventBus) AddEventRouter(fn event.Router) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routers = append(b.routers, fn)
}

// ApplyBackpressure installs (replacing wholesale) the backpressure
// strategy for eventType.
func (b *EventBus) ApplyBackpressure(eventType string, strategy backpressure.Strategy) {
	b.backpressureMu.Lock()
	defer b.backpressureMu.Unlock()
	b.backpressures[eventType] = strategy
}

// EnablePersistence switches on storage append on every publish.
func (b *EventBus) EnablePersistence(s store.EventStore) {
	b.storeMu.Lock()
	defer b.storeMu.Unlock()
	b.eventStore = s
	b.persistenceEnabled = s != nil
}

// DisablePersistence switches off storage append without forgetting
// the configured store.
func (b *EventBus) DisablePersistence() {
	b.storeMu.Lock()
	defer b.storeMu.Unlock()
	b.persistenceEnabled = false
}

// Close stops the bus from accepting new publishes and waits for any
// publish already in flight to finish before returning. Dispatch is
// synchronous per spec.md §5, so there is normally nothing to wait for;
// Close still blocks on the in-flight count rather than assume that, so
// a publish mid-backpressure-sleep or mid-hook-call is allowed to
// finish (or observe ctx cancellation) instead of being cut off.
// Close is idempotent and safe to call more than once.
func (b *EventBus) Close() error {
	b.closed.Store(true)
	b.inflight.Wait()
	return nil
}

// Closed reports whether Close has been called.
func (b *EventBus) Closed() bool {
	return b.closed.Load()
}

// Correlate delegates to the configured store; with no store it
// returns an empty result rather than an error.
func (b *EventBus) Correlate(ctx context.Context, correlationID string) ([]event.DomainEvent, error) {
	b.storeMu.RLock()
	s := b.eventStore
	b.storeMu.RUnlock()

	if s == nil {
		return nil, nil
	}
	events, err := s.GetEventsByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, &event.StorageError{Op: "correlate", Err: err}
	}
	return events, nil
}

// snapshotFilters and snapshotRouters copy the current global filter
// and router lists so dispatch never holds the bus lock across handler
// execution (spec.md §5 "snapshot-on-read").
func (b *EventBus) snapshotFilters() []event.Filter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]event.Filter, len(b.filters))
	copy(out, b.filters)
	return out
}

func (b *EventBus) snapshotRouters() []event.Router {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]event.Router, len(b.routers))
	copy(out, b.routers)
	return out
}

func (b *EventBus) snapshotSubscriptions(eventType string) []*event.Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.subscriptions[eventType]
	out := make([]*event.Subscription, len(subs))
	copy(out, subs)
	return out
}

func (b *EventBus) strategyFor(eventType string) backpressure.Strategy {
	b.backpressureMu.RLock()
	defer b.backpressureMu.RUnlock()
	return b.backpressures[eventType]
}

func (b *EventBus) inFlightCounter(eventType string) *atomic.Int64 {
	v, _ := b.inFlight.LoadOrStore(eventType, &atomic.Int64{})
	return v.(*atomic.Int64)
}

func removeByID(subs []*event.Subscription, id string) []*event.Subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// sleepContext sleeps for d or until ctx is done, whichever comes
// first, so a backpressure delay never outlives a cancelled publish.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// sortByPriority sorts subs by descending priority, stable so equal
// priorities keep their snapshot (insertion) order.
func sortByPriority(subs []*event.Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].Options.Priority > subs[j].Options.Priority
	})
}
