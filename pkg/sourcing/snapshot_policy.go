package sourcing

import "context"

// SnapshotPolicy decides, after SaveAggregate has durably appended an
// aggregate's uncommitted events, whether it should also write a
// snapshot of the aggregate's resulting state. Nothing in spec.md
// mandates when to snapshot, only the shape CreateSnapshot takes; a
// policy is how a caller opts into a cadence without changing that
// contract.
type SnapshotPolicy func(aggregateType string, version int) bool

// EverySnapshots builds a SnapshotPolicy that fires whenever the
// aggregate's version is a multiple of n. n <= 0 never fires.
func EverySnapshots(n int) SnapshotPolicy {
	if n <= 0 {
		return func(string, int) bool { return false }
	}
	return func(_ string, version int) bool {
		return version > 0 && version%n == 0
	}
}

// SaveOption configures optional behavior on SaveAggregate.
type SaveOption func(*saveOptions)

type saveOptions struct {
	aggregateType string
	policy        SnapshotPolicy
}

// WithSnapshotPolicy makes SaveAggregate evaluate policy against the
// aggregate's post-save version and, if it fires, call CreateSnapshot
// under aggregateType. A failed auto-snapshot is logged, not returned:
// the events are already durably saved, so the save itself succeeded.
func WithSnapshotPolicy(aggregateType string, policy SnapshotPolicy) SaveOption {
	return func(o *saveOptions) {
		o.aggregateType = aggregateType
		o.policy = policy
	}
}

func (p *Plugin) maybeSnapshot(ctx context.Context, aggregate AggregateRoot, opts []SaveOption) {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy == nil || !o.policy(o.aggregateType, aggregate.Version()) {
		return
	}
	if err := p.CreateSnapshot(ctx, aggregate, o.aggregateType); err != nil {
		p.logger.Error("auto snapshot failed",
			"aggregate_type", o.aggregateType, "aggregate_id", aggregate.ID(), "error", err)
	}
}
