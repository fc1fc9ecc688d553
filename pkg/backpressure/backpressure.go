// Package backpressure implements per-event-type admission policies the
// bus consults before dispatching: Strategy.ShouldAccept gates whether
// to proceed immediately, Strategy.CalculateDelay says how long to
// sleep first. Backpressure delays producers; it never drops events.
package backpressure

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Strategy is the contract the bus holds per event type. Ownership is
// whole-strategy replacement: ApplyBackpressure swaps the strategy for
// a type, it does not merge configuration into an existing one.
type Strategy interface {
	// ShouldAccept reports whether an event at the given queue depth
	// may proceed without waiting.
	ShouldAccept(queueDepth int) bool

	// CalculateDelay returns how long to sleep before proceeding when
	// ShouldAccept returned false.
	CalculateDelay() time.Duration
}

// TokenBucketStrategy is a rate.Limiter-backed Strategy. Admission is
// gated on a queue-depth threshold; the delay comes from the limiter's
// own reservation, so it grows monotonically as the bucket drains
// under sustained load.
type TokenBucketStrategy struct {
	limiter       *rate.Limiter
	maxQueueDepth int
}

// NewTokenBucketStrategy builds a Strategy that allows requestsPerSecond
// sustained throughput with the given burst, rejecting immediate
// admission once queueDepth reaches maxQueueDepth.
func NewTokenBucketStrategy(requestsPerSecond float64, burst, maxQueueDepth int) *TokenBucketStrategy {
	return &TokenBucketStrategy{
		limiter:       rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		maxQueueDepth: maxQueueDepth,
	}
}

func (s *TokenBucketStrategy) ShouldAccept(queueDepth int) bool {
	return queueDepth < s.maxQueueDepth
}

func (s *TokenBucketStrategy) CalculateDelay() time.Duration {
	reservation := s.limiter.Reserve()
	if !reservation.OK() {
		return 0
	}
	return reservation.Delay()
}

// ThresholdStrategy is a dependency-free Strategy whose delay scales
// linearly with how far queueDepth exceeds the threshold. It exists for
// callers that want backpressure without pulling in a token bucket, and
// for tests that need a delay they can predict exactly.
type ThresholdStrategy struct {
	mu        sync.Mutex
	threshold int
	perUnit   time.Duration
	lastDepth int
}

// NewThresholdStrategy builds a Strategy that accepts freely below
// threshold and otherwise delays perUnit for every unit of depth past
// threshold.
func NewThresholdStrategy(threshold int, perUnit time.Duration) *ThresholdStrategy {
	return &ThresholdStrategy{threshold: threshold, perUnit: perUnit}
}

func (s *ThresholdStrategy) ShouldAccept(queueDepth int) bool {
	s.mu.Lock()
	s.lastDepth = queueDepth
	s.mu.Unlock()
	return queueDepth < s.threshold
}

func (s *ThresholdStrategy) CalculateDelay() time.Duration {
	s.mu.Lock()
	depth := s.lastDepth
	s.mu.Unlock()

	over := depth - s.threshold
	if over <= 0 {
		return 0
	}
	return time.Duration(over) * s.perUnit
}
