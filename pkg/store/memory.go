package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kestrelbyte/reactor/pkg/event"
)

// InMemoryStore is the reference EventStore/AggregateStore/SnapshotStore
// implementation: non-persistent, process-local, and the only store
// this system defines — durable disk persistence is out of scope
// (spec.md §1). All three indexes (insertion order, type, correlation
// id) plus the aggregate index update under one mutex per append, so
// they are never observed out of sync with each other.
type InMemoryStore struct {
	mu     sync.RWMutex
	logger *slog.Logger

	events        []event.DomainEvent
	byType        map[string][]int
	byCorrelation map[string][]int
	byAggregate   map[string][]int

	aggregateVersion map[string]int
	snapshots        map[string]Snapshot
}

// New creates an empty InMemoryStore.
func New(logger *slog.Logger) *InMemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryStore{
		logger:           logger,
		byType:           make(map[string][]int),
		byCorrelation:    make(map[string][]int),
		byAggregate:      make(map[string][]int),
		aggregateVersion: make(map[string]int),
		snapshots:        make(map[string]Snapshot),
	}
}

func (s *InMemoryStore) StoreEvent(ctx context.Context, e event.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Type == "" {
		return event.NewValidationError("type", "event type must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.events)
	s.events = append(s.events, e)
	s.byType[e.Type] = append(s.byType[e.Type], idx)

	if corrID := correlationKey(e); corrID != "" {
		s.byCorrelation[corrID] = append(s.byCorrelation[corrID], idx)
	}
	if aggID, ok := aggregateID(e); ok {
		s.byAggregate[aggID] = append(s.byAggregate[aggID], idx)
	}

	return nil
}

func (s *InMemoryStore) GetEventsByType(ctx context.Context, eventType string, start, end *int64) ([]event.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(s.byType[eventType], start, end), nil
}

func (s *InMemoryStore) GetEventsByCorrelationID(ctx context.Context, correlationID string) ([]event.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(s.byCorrelation[correlationID], nil, nil), nil
}

func (s *InMemoryStore) GetAllEvents(ctx context.Context, start, end *int64) ([]event.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]int, len(s.events))
	for i := range s.events {
		all[i] = i
	}
	return s.collect(all, start, end), nil
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
	s.byType = make(map[string][]int)
	s.byCorrelation = make(map[string][]int)
	s.byAggregate = make(map[string][]int)
	s.aggregateVersion = make(map[string]int)
	s.snapshots = make(map[string]Snapshot)
}

// collect copies the events at indices whose timestamp falls within
// [start, end], then sorts ascending by timestamp with a stable sort
// so ties keep their original (insertion order) relative position.
func (s *InMemoryStore) collect(indices []int, start, end *int64) []event.DomainEvent {
	out := make([]event.DomainEvent, 0, len(indices))
	for _, idx := range indices {
		e := s.events[idx]
		if start != nil && e.Timestamp < *start {
			continue
		}
		if end != nil && e.Timestamp > *end {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// SaveEvents implements AggregateStore: events must be contiguously
// versioned starting at expectedVersion+1.
func (s *InMemoryStore) SaveEvents(ctx context.Context, aggregateID string, expectedVersion int, events []event.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentVersion := s.aggregateVersion[aggregateID]
	if currentVersion != expectedVersion {
		return &event.ConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   currentVersion,
		}
	}

	wantVersion := expectedVersion + 1
	for _, e := range events {
		v, ok := e.Metadata["version"].(int)
		if !ok {
			return event.NewValidationError("version", fmt.Sprintf("event %s missing integer metadata[version]", e.ID))
		}
		if v != wantVersion {
			return &event.ConflictError{
				AggregateID:     aggregateID,
				ExpectedVersion: wantVersion,
				ActualVersion:   v,
			}
		}
		wantVersion++
	}

	for _, e := range events {
		idx := len(s.events)
		s.events = append(s.events, e)
		s.byType[e.Type] = append(s.byType[e.Type], idx)
		if corrID := correlationKey(e); corrID != "" {
			s.byCorrelation[corrID] = append(s.byCorrelation[corrID], idx)
		}
		s.byAggregate[aggregateID] = append(s.byAggregate[aggregateID], idx)
	}
	s.aggregateVersion[aggregateID] = wantVersion - 1

	return nil
}

func (s *InMemoryStore) LoadEvents(ctx context.Context, aggregateID string) ([]event.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	indices := s.byAggregate[aggregateID]
	out := make([]event.DomainEvent, 0, len(indices))
	for _, idx := range indices {
		out = append(out, s.events[idx])
	}
	sort.SliceStable(out, func(i, j int) bool {
		vi, _ := out[i].Metadata["version"].(int)
		vj, _ := out[j].Metadata["version"].(int)
		return vi < vj
	})
	return out, nil
}

func (s *InMemoryStore) CurrentVersion(aggregateID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregateVersion[aggregateID]
}

func (s *InMemoryStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.AggregateID == "" {
		return event.NewValidationError("aggregateId", "snapshot aggregate id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.AggregateID] = snap
	return nil
}

func (s *InMemoryStore) GetLatestSnapshot(ctx context.Context, aggregateID string) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[aggregateID]
	return snap, ok, nil
}

// correlationKey resolves an event's correlation id from either its
// top-level field or metadata["correlationId"], per spec.md §4.3.
func correlationKey(e event.DomainEvent) string {
	if e.CorrelationID != "" {
		return e.CorrelationID
	}
	if v, ok := e.Metadata["correlationId"].(string); ok {
		return v
	}
	return ""
}

// aggregateID resolves an event's owning aggregate from
// metadata["aggregateId"], the convention the sourcing plugin uses
// when it writes versioned domain events to the store.
func aggregateID(e event.DomainEvent) (string, bool) {
	v, ok := e.Metadata["aggregateId"].(string)
	return v, ok && v != ""
}
