package bus

import (
	"context"
	"fmt"

	"github.com/kestrelbyte/reactor/pkg/event"
	"github.com/kestrelbyte/reactor/pkg/extension"
)

// Publish is the central operation: it routes e to matching, live
// subscriptions in priority order, applying global filters, the
// extension pipeline, backpressure, storage, and routers, per the
// ten-step contract in spec.md §4.1.
func (b *EventBus) Publish(ctx context.Context, e event.DomainEvent) error {
	if b.closed.Load() {
		return event.ErrBusClosed
	}
	b.inflight.Add(1)
	defer b.inflight.Done()

	if e.ID == "" {
		e.ID = event.NewID()
	}
	if e.Type == "" {
		return event.NewValidationError("type", "event type must not be empty")
	}

	// Step 1: global filters may veto the event silently.
	for _, filter := range b.snapshotFilters() {
		if !filter(e) {
			b.logger.Debug("event dropped by global filter", "event_type", e.Type, "event_id", e.ID)
			return nil
		}
	}

	// Step 2: EVENT_BEFORE_PUBLISH may rewrite the payload; its failure
	// is fatal to this publish.
	e, err := b.runBeforePublish(ctx, e)
	if err != nil {
		return err
	}

	// Step 3: snapshot the subscription set so concurrent
	// subscribe/unsubscribe calls don't affect this delivery.
	snapshot := b.snapshotSubscriptions(e.Type)

	// Step 4: backpressure gate, fed the true in-flight count for this
	// event type (this publish included), not subscriber count — the
	// in-flight counter is incremented before the gate so a burst of
	// concurrent Publish calls on the same type is what throttles it.
	counter := b.inFlightCounter(e.Type)
	counter.Add(1)
	defer counter.Add(-1)
	b.applyBackpressure(ctx, e.Type, int(counter.Load()))

	// Step 5: per-subscription filter, then priority sort.
	deliverable := make([]*event.Subscription, 0, len(snapshot))
	for _, sub := range snapshot {
		if sub.Filter != nil && !sub.Filter(e) {
			continue
		}
		deliverable = append(deliverable, sub)
	}
	sortByPriority(deliverable)

	// Step 6: deliver, awaiting each handler; errors are caught, logged,
	// and never interrupt delivery to the remaining subscribers.
	for _, sub := range deliverable {
		b.dispatchOne(ctx, e, sub)
	}

	// Step 7: once=true subscriptions present in the snapshot are
	// removed whether or not they ran (e.g. they were filtered out).
	b.pruneOnce(snapshot)

	// Step 8: router fan-out, recursively publishing derived types.
	b.fanOutRouters(ctx, e)

	// Step 9: storage append; failures are logged, never surfaced.
	b.appendToStore(ctx, e)

	// Step 10: EVENT_AFTER_PUBLISH; failure is logged, never surfaced.
	b.runAfterPublish(ctx, e)

	return nil
}

// PublishAll publishes each event in order, awaiting each one in turn —
// equivalent to a fold of Publish. It stops and returns the first
// error encountered (a closed bus, an event with an empty type, or a
// BEFORE_PUBLISH hook failure), preserving the input order of whatever
// was published before the failure.
func (b *EventBus) PublishAll(ctx context.Context, events []event.DomainEvent) error {
	for _, e := range events {
		if err := b.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *EventBus) runBeforePublish(ctx context.Context, e event.DomainEvent) (event.DomainEvent, error) {
	if b.extensions == nil {
		b.logger.Warn("extension system uninitialised; treating beforePublish as no-op", "event_type", e.Type)
		return e, nil
	}

	params := extension.New(map[string]any{
		"eventType": e.Type,
		"payload":   e.Payload,
	})
	result, err := b.extensions.ExecuteExtensionPoint(ctx, extension.PointEventBeforePublish, params)
	if err != nil {
		return e, err
	}
	if payload, ok := result.Get("payload"); ok {
		e = e.WithPayload(payload)
	}
	return e, nil
}

func (b *EventBus) runAfterPublish(ctx context.Context, e event.DomainEvent) {
	if b.extensions == nil {
		return
	}
	params := extension.New(map[string]any{
		"eventId":   e.ID,
		"eventType": e.Type,
		"payload":   e.Payload,
	})
	if _, err := b.extensions.ExecuteExtensionPoint(ctx, extension.PointEventAfterPublish, params); err != nil {
		b.logger.Error("afterPublish hook failed", "event_id", e.ID, "event_type", e.Type, "error", err)
	}
}

func (b *EventBus) applyBackpressure(ctx context.Context, eventType string, queueDepth int) {
	strategy := b.strategyFor(eventType)
	if strategy == nil {
		return
	}
	if strategy.ShouldAccept(queueDepth) {
		return
	}
	delay := strategy.CalculateDelay()
	b.logger.Debug("backpressure delay", "event_type", eventType, "queue_depth", queueDepth, "delay", delay)
	sleepContext(ctx, delay)
}

func (b *EventBus) dispatchOne(ctx context.Context, e event.DomainEvent, sub *event.Subscription) {
	if err := safeInvoke(ctx, e.Payload, sub.Handler); err != nil {
		herr := &event.HandlerError{SubscriptionID: sub.ID, EventType: e.Type, Err: err}
		b.logger.Error("handler failed", "subscription_id", sub.ID, "event_id", e.ID,
			"event_type", e.Type, "error", herr)
	}
}

func safeInvoke(ctx context.Context, payload any, handler event.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return handler(ctx, payload)
}

func (b *EventBus) pruneOnce(snapshot []*event.Subscription) {
	var toRemove []string
	for _, sub := range snapshot {
		if sub.Options.Once {
			toRemove = append(toRemove, sub.ID)
		}
	}
	if len(toRemove) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range toRemove {
		eventType, ok := b.subIndex[id]
		if !ok {
			continue
		}
		delete(b.subIndex, id)
		b.subscriptions[eventType] = removeByID(b.subscriptions[eventType], id)
	}
}

func (b *EventBus) fanOutRouters(ctx context.Context, e event.DomainEvent) {
	for _, router := range b.snapshotRouters() {
		targets := b.safeRoute(router, e)
		for _, targetType := range targets {
			if targetType == "" || targetType == e.Type {
				continue // self-loops are skipped
			}
			derived := e.WithType(targetType)
			if err := b.Publish(ctx, derived); err != nil {
				b.logger.Error("router fan-out publish failed",
					"source_type", e.Type, "target_type", targetType, "error", err)
			}
		}
	}
}

func (b *EventBus) safeRoute(router event.Router, e event.DomainEvent) (targets []string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("router panicked", "event_type", e.Type, "panic", r)
			targets = nil
		}
	}()
	return router(e)
}

func (b *EventBus) appendToStore(ctx context.Context, e event.DomainEvent) {
	if already, _ := e.Metadata[event.MetaAlreadyStored].(bool); already {
		return
	}

	b.storeMu.RLock()
	s := b.eventStore
	enabled := b.persistenceEnabled
	b.storeMu.RUnlock()

	if !enabled || s == nil {
		return
	}
	if err := s.StoreEvent(ctx, e); err != nil {
		b.logger.Error("storage append failed", "event_id", e.ID, "event_type", e.Type, "error", err)
	}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
