// Package config holds the in-process settings a reactor deployment is
// constructed from: no file format, no environment variables, no CLI —
// this system has none of its own (spec.md §6). A Config is always
// built in code, validated once, and handed to the factory that wires
// up the bus, store, extension system, router, and sourcing plugin.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is the complete set of tunables a reactor instance needs.
type Config struct {
	Bus        BusConfig        `validate:"required"`
	Store      StoreConfig      `validate:"required"`
	Extensions ExtensionsConfig `validate:"required"`
}

// BusConfig holds the bus settings reactor.New reads: whether
// persistence starts enabled, and the token-bucket parameters of the
// strategy it builds and exposes as Instance.DefaultType. reactor.New
// does not install that strategy on any event type; backpressure takes
// effect only for types given a strategy via EventBus.ApplyBackpressure.
type BusConfig struct {
	DefaultBackpressure BackpressureConfig `validate:"required"`
	PersistenceEnabled  bool
}

// BackpressureConfig parametrizes a token-bucket backpressure.Strategy.
type BackpressureConfig struct {
	RequestsPerSecond float64 `validate:"required,gt=0"`
	Burst             int     `validate:"required,min=1,max=10000"`
	MaxQueueDepth     int     `validate:"required,min=1,max=1000000"`
}

// StoreConfig controls the in-memory EventStore.
type StoreConfig struct {
	SnapshotsEnabled bool
	// RetentionWindow, if non-zero, is advisory: the reference
	// InMemoryStore never evicts on its own (no durable persistence or
	// eviction policy is in scope), but a future store implementation
	// can use this to bound memory.
	RetentionWindow time.Duration `validate:"omitempty,min=0"`
}

// ExtensionsConfig controls the extension system's bootstrap behavior.
type ExtensionsConfig struct {
	// FailFastOnCycle (true by default) is carried in the config only:
	// reactor.New does not pass it on, and RegisterExtension rejects a
	// cycle with ErrCycleDetected whatever its value.
	FailFastOnCycle bool
}

// Default returns the configuration a reactor is built with absent any
// caller override: persistence on, a generous token bucket, snapshots
// enabled, fail-fast cycle detection.
func Default() Config {
	return Config{
		Bus: BusConfig{
			DefaultBackpressure: BackpressureConfig{
				RequestsPerSecond: 500,
				Burst:             100,
				MaxQueueDepth:     1000,
			},
			PersistenceEnabled: true,
		},
		Store: StoreConfig{
			SnapshotsEnabled: true,
		},
		Extensions: ExtensionsConfig{
			FailFastOnCycle: true,
		},
	}
}

// Validate checks every struct tag invariant on cfg.
func (cfg Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Option customizes a Config built from Default.
type Option func(*Config)

// WithPersistence toggles whether new buses start with persistence on.
func WithPersistence(enabled bool) Option {
	return func(c *Config) { c.Bus.PersistenceEnabled = enabled }
}

// WithBackpressure overrides the default token-bucket parameters.
func WithBackpressure(requestsPerSecond float64, burst, maxQueueDepth int) Option {
	return func(c *Config) {
		c.Bus.DefaultBackpressure = BackpressureConfig{
			RequestsPerSecond: requestsPerSecond,
			Burst:             burst,
			MaxQueueDepth:     maxQueueDepth,
		}
	}
}

// WithSnapshots toggles whether the factory wires a SnapshotStore.
func WithSnapshots(enabled bool) Option {
	return func(c *Config) { c.Store.SnapshotsEnabled = enabled }
}

// New builds a Config from Default with opts applied, validating the
// result before returning it.
func New(opts ...Option) (Config, error) {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
