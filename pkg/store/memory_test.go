package store

import (
	"context"
	"testing"

	"github.com/kestrelbyte/reactor/pkg/event"
)

func TestStoreEventThenGetByType(t *testing.T) {
	s := New(nil)
	e := event.New("widget.created", "payload")
	e.Timestamp = 100
	if err := s.StoreEvent(context.Background(), e); err != nil {
		t.Fatalf("store: %v", err)
	}

	ts := int64(100)
	got, err := s.GetEventsByType(context.Background(), "widget.created", &ts, &ts)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].ID != e.ID {
		t.Fatalf("expected to find stored event, got %v", got)
	}
}

func TestCorrelationAndReplayRange(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	mk := func(ts int64, corr string) event.DomainEvent {
		e := event.New("c-type", nil)
		e.Timestamp = ts
		e.CorrelationID = corr
		return e
	}

	e1 := mk(100, "c")
	e2 := mk(200, "c")
	e3 := mk(300, "c")
	unrelated := mk(150, "other")

	for _, e := range []event.DomainEvent{e1, e2, e3, unrelated} {
		if err := s.StoreEvent(ctx, e); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	correlated, err := s.GetEventsByCorrelationID(ctx, "c")
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if len(correlated) != 3 {
		t.Fatalf("expected 3 correlated events, got %d", len(correlated))
	}
	for i, ts := range []int64{100, 200, 300} {
		if correlated[i].Timestamp != ts {
			t.Fatalf("expected ascending timestamp order, got %v", correlated)
		}
	}

	start, end := int64(150), int64(250)
	ranged, err := s.GetEventsByType(ctx, "c-type", &start, &end)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(ranged) != 1 || ranged[0].Timestamp != 200 {
		t.Fatalf("expected only the ts=200 event, got %v", ranged)
	}
}

func TestSaveEventsRejectsVersionGap(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	e := event.New("event.Incremented", nil)
	e.Metadata = map[string]any{"version": 2} // should be 1

	if err := s.SaveEvents(ctx, "agg-1", 0, []event.DomainEvent{e}); err == nil {
		t.Fatal("expected version gap to be rejected")
	}
}

func TestSaveEventsRejectsConcurrentConflict(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	e1 := event.New("event.Incremented", nil)
	e1.Metadata = map[string]any{"version": 1}
	if err := s.SaveEvents(ctx, "agg-1", 0, []event.DomainEvent{e1}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	e2 := event.New("event.Incremented", nil)
	e2.Metadata = map[string]any{"version": 2}
	if err := s.SaveEvents(ctx, "agg-1", 0, []event.DomainEvent{e2}); err == nil {
		t.Fatal("expected stale expectedVersion to be rejected")
	}

	if err := s.SaveEvents(ctx, "agg-1", 1, []event.DomainEvent{e2}); err != nil {
		t.Fatalf("second save with correct expected version: %v", err)
	}
	if s.CurrentVersion("agg-1") != 2 {
		t.Fatalf("expected version 2, got %d", s.CurrentVersion("agg-1"))
	}
}

func TestLoadEventsAscendingByVersion(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	e1 := event.New("event.A", "one")
	e1.Metadata = map[string]any{"version": 1}
	e2 := event.New("event.B", "two")
	e2.Metadata = map[string]any{"version": 2}

	if err := s.SaveEvents(ctx, "agg-1", 0, []event.DomainEvent{e1, e2}); err != nil {
		t.Fatalf("save: %v", err)
	}

	events, err := s.LoadEvents(ctx, "agg-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 2 || events[0].Payload != "one" || events[1].Payload != "two" {
		t.Fatalf("expected ascending version order, got %v", events)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	if _, ok, err := s.GetLatestSnapshot(ctx, "agg-1"); err != nil || ok {
		t.Fatalf("expected no snapshot initially, got ok=%v err=%v", ok, err)
	}

	snap := Snapshot{AggregateID: "agg-1", AggregateType: "counter", Version: 3, State: "state"}
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	got, ok, err := s.GetLatestSnapshot(ctx, "agg-1")
	if err != nil || !ok {
		t.Fatalf("expected snapshot present, ok=%v err=%v", ok, err)
	}
	if got.Version != 3 || got.State != "state" {
		t.Fatalf("got %+v", got)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	_ = s.StoreEvent(ctx, event.New("t", nil))
	if s.Count() != 1 {
		t.Fatalf("expected count 1, got %d", s.Count())
	}
	s.Clear()
	if s.Count() != 0 {
		t.Fatalf("expected count 0 after clear, got %d", s.Count())
	}
}
