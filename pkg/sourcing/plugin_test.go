package sourcing

import (
	"context"
	"testing"

	"github.com/kestrelbyte/reactor/pkg/event"
	"github.com/kestrelbyte/reactor/pkg/store"
)

type counter struct {
	Base
	total int
}

func newCounter(id string) AggregateRoot {
	return &counter{Base: NewBase(id)}
}

func (c *counter) Increment(amount int) {
	c.ApplyEvent(c.Record("VALUE_INCREMENTED", map[string]any{"amount": amount}))
}

func (c *counter) ApplyEvent(e Event) {
	if e.Type == "VALUE_INCREMENTED" {
		if m, ok := e.Payload.(map[string]any); ok {
			if amount, ok := m["amount"].(int); ok {
				c.total += amount
			}
		}
	}
	c.AdvanceVersion(e.Version)
}

func (c *counter) Restore(state any, version int) {
	if snap, ok := state.(*counter); ok {
		c.total = snap.total
	}
	c.RestoreBase(c.ID(), version)
}

type fakeBus struct {
	published []event.DomainEvent
}

func (b *fakeBus) Subscribe(eventType string, handler event.Handler, opts ...event.SubscriptionOptions) *event.Subscription {
	return &event.Subscription{ID: event.NewID(), EventType: eventType, Handler: handler}
}

func (b *fakeBus) Publish(ctx context.Context, e event.DomainEvent) error {
	b.published = append(b.published, e)
	return nil
}

func TestSaveAggregatePersistsAndPublishes(t *testing.T) {
	s := store.New(nil)
	bus := &fakeBus{}
	plugin := New(bus, s, s, nil)
	plugin.RegisterAggregateFactory("counter", newCounter)

	c := newCounter("a").(*counter)
	c.Increment(5)

	if err := plugin.SaveAggregate(context.Background(), c); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(c.UncommittedEvents()) != 0 {
		t.Fatal("expected uncommitted buffer cleared after save")
	}
	if s.CurrentVersion("a") != 1 {
		t.Fatalf("expected store version 1, got %d", s.CurrentVersion("a"))
	}
	if len(bus.published) != 1 || bus.published[0].Type != "event.VALUE_INCREMENTED" {
		t.Fatalf("expected published event.VALUE_INCREMENTED, got %v", bus.published)
	}
}

func TestSaveAggregateNoUncommittedIsNoOp(t *testing.T) {
	s := store.New(nil)
	bus := &fakeBus{}
	plugin := New(bus, s, s, nil)
	c := newCounter("a").(*counter)

	if err := plugin.SaveAggregate(context.Background(), c); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(bus.published) != 0 {
		t.Fatal("expected no publish when there are no uncommitted events")
	}
}

func TestLoadAggregateAppliesEventsInOrder(t *testing.T) {
	s := store.New(nil)
	bus := &fakeBus{}
	plugin := New(bus, s, s, nil)
	plugin.RegisterAggregateFactory("counter", newCounter)

	c := newCounter("a").(*counter)
	c.Increment(5)
	c.Increment(3)
	if err := plugin.SaveAggregate(context.Background(), c); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := plugin.LoadAggregate(context.Background(), "counter", "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	lc := loaded.(*counter)
	if lc.total != 8 {
		t.Fatalf("expected total 8, got %d", lc.total)
	}
	if lc.Version() != 2 {
		t.Fatalf("expected version 2, got %d", lc.Version())
	}
	if len(lc.UncommittedEvents()) != 0 {
		t.Fatal("expected no uncommitted events after load")
	}
}

func TestLoadAggregateFromSnapshotSkipsAppliedVersions(t *testing.T) {
	s := store.New(nil)
	bus := &fakeBus{}
	plugin := New(bus, s, s, nil)
	plugin.RegisterAggregateFactory("counter", newCounter)

	c := newCounter("a").(*counter)
	c.Increment(5)
	_ = plugin.SaveAggregate(context.Background(), c)

	if err := plugin.CreateSnapshot(context.Background(), c, "counter"); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	c.Increment(3)
	_ = plugin.SaveAggregate(context.Background(), c)

	loaded, err := plugin.LoadAggregateFromSnapshot(context.Background(), "counter", "a")
	if err != nil {
		t.Fatalf("load from snapshot: %v", err)
	}
	lc := loaded.(*counter)
	if lc.total != 8 {
		t.Fatalf("expected total 8 (5 from snapshot + 3 from the later event), got %d", lc.total)
	}
	if lc.Version() != 2 {
		t.Fatalf("expected version 2, got %d", lc.Version())
	}
}

func TestSaveAggregateWithSnapshotPolicyFiresEveryN(t *testing.T) {
	s := store.New(nil)
	bus := &fakeBus{}
	plugin := New(bus, s, s, nil)
	plugin.RegisterAggregateFactory("counter", newCounter)

	c := newCounter("a").(*counter)
	policy := EverySnapshots(2)

	c.Increment(1)
	if err := plugin.SaveAggregate(context.Background(), c, WithSnapshotPolicy("counter", policy)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, _ := s.GetLatestSnapshot(context.Background(), "a"); ok {
		t.Fatal("expected no snapshot after version 1 with EverySnapshots(2)")
	}

	c.Increment(1)
	if err := plugin.SaveAggregate(context.Background(), c, WithSnapshotPolicy("counter", policy)); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, ok, err := s.GetLatestSnapshot(context.Background(), "a")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected a snapshot after version 2 with EverySnapshots(2)")
	}
	if snap.Version != 2 {
		t.Fatalf("expected snapshot at version 2, got %d", snap.Version)
	}
}

func TestEverySnapshotsNeverFiresForNonPositiveN(t *testing.T) {
	policy := EverySnapshots(0)
	if policy("counter", 10) {
		t.Fatal("expected EverySnapshots(0) to never fire")
	}
}

func TestCommandDispatchRejectsUnknownCommand(t *testing.T) {
	s := store.New(nil)
	bus := &fakeBus{}
	plugin := New(bus, s, s, nil)

	err := plugin.dispatch(context.Background(), "UNKNOWN", Command{AggregateID: "a"})
	if err == nil {
		t.Fatal("expected dispatch of an unregistered command to fail")
	}
	if len(bus.published) != 1 || bus.published[0].Type != "command.rejected" {
		t.Fatalf("expected a command.rejected publish, got %v", bus.published)
	}
}

func TestCommandDispatchSucceeds(t *testing.T) {
	s := store.New(nil)
	bus := &fakeBus{}
	plugin := New(bus, s, s, nil)
	plugin.RegisterAggregateFactory("counter", newCounter)
	plugin.RegisterCommandHandler("INCREMENT_VALUE", func(cmd Command) (AggregateRoot, error) {
		c := newCounter(cmd.AggregateID).(*counter)
		payload, _ := cmd.Payload.(map[string]any)
		amount, _ := payload["amount"].(int)
		c.Increment(amount)
		return c, nil
	})

	err := plugin.dispatch(context.Background(), "INCREMENT_VALUE", Command{
		Type:        "INCREMENT_VALUE",
		AggregateID: "a",
		Payload:     map[string]any{"amount": 5},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if s.CurrentVersion("a") != 1 {
		t.Fatalf("expected store version 1, got %d", s.CurrentVersion("a"))
	}
	for _, published := range bus.published {
		if published.Type == "command.rejected" {
			t.Fatal("did not expect a rejection for a successful command")
		}
	}
}
