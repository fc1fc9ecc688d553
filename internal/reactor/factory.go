// Package reactor composes a complete runtime instance: a bus, a
// store, an extension system, a content-based router, and an
// event-sourcing plugin, wired in the dependency order spec.md §2
// declares (IDs → BackpressureStrategy → ExtensionSystem → EventStore
// → EventBus → EventSource → Router & EventSourcing plugins). Nothing
// here is process-wide or global — every call to New produces an
// independent instance (spec.md §9 "no process-wide singleton").
package reactor

import (
	"log/slog"

	"github.com/kestrelbyte/reactor/internal/config"
	"github.com/kestrelbyte/reactor/pkg/backpressure"
	"github.com/kestrelbyte/reactor/pkg/bus"
	"github.com/kestrelbyte/reactor/pkg/extension"
	"github.com/kestrelbyte/reactor/pkg/router"
	"github.com/kestrelbyte/reactor/pkg/sourcing"
	"github.com/kestrelbyte/reactor/pkg/store"
)

// Instance bundles the components a caller needs to produce and
// consume events.
type Instance struct {
	Bus         *bus.EventBus
	Store       *store.InMemoryStore
	Extensions  *extension.System
	Source      *store.EventSource
	Router      *router.ContentBasedRouter
	Sourcing    *sourcing.Plugin
	DefaultType backpressure.Strategy
}

// New composes a complete Instance from cfg, registering the router as
// a bus-level router and leaving the sourcing plugin ready for
// RegisterCommandHandler/RegisterAggregateFactory calls.
func New(cfg config.Config, logger *slog.Logger) *Instance {
	if logger == nil {
		logger = slog.Default()
	}

	extensions := extension.New(logger)

	eventStore := store.New(logger)

	var snaps store.SnapshotStore
	if cfg.Store.SnapshotsEnabled {
		snaps = eventStore
	}

	eventBus := bus.New(logger, bus.WithExtensionSystem(extensions))
	if cfg.Bus.PersistenceEnabled {
		eventBus.EnablePersistence(eventStore)
	}

	defaultStrategy := backpressure.NewTokenBucketStrategy(
		cfg.Bus.DefaultBackpressure.RequestsPerSecond,
		cfg.Bus.DefaultBackpressure.Burst,
		cfg.Bus.DefaultBackpressure.MaxQueueDepth,
	)

	source := store.NewEventSource(eventStore, eventBus, logger)

	contentRouter := router.New(eventBus, logger)
	eventBus.AddEventRouter(contentRouter.AsEventRouter())

	sourcingPlugin := sourcing.New(eventBus, eventStore, snaps, logger)

	return &Instance{
		Bus:         eventBus,
		Store:       eventStore,
		Extensions:  extensions,
		Source:      source,
		Router:      contentRouter,
		Sourcing:    sourcingPlugin,
		DefaultType: defaultStrategy,
	}
}
