// Package router implements the Content-Based Router plugin: a
// registry of named routes that observe every published event and
// republish transformed copies to derived types whenever a route
// matches (spec.md §4.5).
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelbyte/reactor/pkg/event"
)

// Publisher is the minimal bus surface the router republishes onto,
// declared locally to avoid depending on pkg/bus.
type Publisher interface {
	Publish(ctx context.Context, e event.DomainEvent) error
}

// ContentBasedRouter holds a name-keyed set of routes, iterated in
// insertion order during matching.
type ContentBasedRouter struct {
	mu      sync.RWMutex
	order   []string
	routes  map[string]Route
	publish Publisher
	logger  *slog.Logger

	emitRouteEvents bool
}

// Option configures a ContentBasedRouter at construction time.
type Option func(*ContentBasedRouter)

// WithRouteMatchedEvents turns on the router.route.matched diagnostic
// event emitted alongside every match.
func WithRouteMatchedEvents() Option {
	return func(r *ContentBasedRouter) { r.emitRouteEvents = true }
}

// New creates an empty ContentBasedRouter that republishes matches
// through publisher.
func New(publisher Publisher, logger *slog.Logger, opts ...Option) *ContentBasedRouter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ContentBasedRouter{
		routes:  make(map[string]Route),
		publish: publisher,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterRoute adds a new route. It fails if the route is invalid or
// a route with the same name already exists.
func (r *ContentBasedRouter) RegisterRoute(route Route) error {
	if err := route.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[route.Name]; exists {
		return event.NewValidationError("name", "route "+route.Name+" already registered")
	}
	r.routes[route.Name] = route
	r.order = append(r.order, route.Name)
	return nil
}

// UpdateRoute replaces an existing route, keeping its position in
// iteration order. It fails if no route with that name exists.
func (r *ContentBasedRouter) UpdateRoute(route Route) error {
	if err := route.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[route.Name]; !exists {
		return event.NewNotFoundError("route", route.Name, event.ErrRouteNotFound)
	}
	r.routes[route.Name] = route
	return nil
}

// RemoveRoute deletes a route by name.
func (r *ContentBasedRouter) RemoveRoute(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[name]; !exists {
		return event.NewNotFoundError("route", name, event.ErrRouteNotFound)
	}
	delete(r.routes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetRouteByName returns the route registered under name.
func (r *ContentBasedRouter) GetRouteByName(name string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[name]
	return route, ok
}

// GetAllRoutes returns every route in insertion order.
func (r *ContentBasedRouter) GetAllRoutes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.routes[name])
	}
	return out
}

// snapshot copies the route list under lock so matching never holds
// the router's lock across a publish.
func (r *ContentBasedRouter) snapshot() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.routes[name])
	}
	return out
}

// matchResult pairs a route with the payload it should republish.
type matchResult struct {
	route   Route
	payload any
}

// HandleEvent evaluates every route against e concurrently (predicate
// evaluation has no ordering requirement) and sequentially republishes
// every match, preserving route registration order for the final
// publish sequence and diagnostic events.
func (r *ContentBasedRouter) HandleEvent(ctx context.Context, e event.DomainEvent) error {
	routes := r.snapshot()
	if len(routes) == 0 {
		return nil
	}

	matched := make([]*matchResult, len(routes))
	g, gctx := errgroup.WithContext(ctx)
	for i, route := range routes {
		i, route := i, route
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if route.Matches(e) {
				matched[i] = &matchResult{route: route, payload: route.apply(e.Payload)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, m := range matched {
		if m == nil {
			continue
		}
		if err := r.publishMatch(ctx, e, m.route, m.payload); err != nil {
			return err
		}
	}
	return nil
}

// AsEventRouter adapts the router to the bus's event.Router signature
// (spec.md §4.1 step 8: "for each registered router, call it with the
// event"), so it can be installed via EventBus.AddEventRouter. Because
// event.Router carries no context, matches are republished on
// context.Background() — handlers that need cancellation-aware routing
// should call HandleEvent directly instead. HandleEvent performs the
// actual publishing itself (honoring transformPayload and
// emitRouteEvents), so the adapter always reports no derived types to
// the caller, avoiding a second, untransformed fan-out from the bus.
func (r *ContentBasedRouter) AsEventRouter() event.Router {
	return func(e event.DomainEvent) []string {
		if err := r.HandleEvent(context.Background(), e); err != nil {
			r.logger.Error("router handling failed", "event_type", e.Type, "error", err)
		}
		return nil
	}
}

func (r *ContentBasedRouter) publishMatch(ctx context.Context, source event.DomainEvent, route Route, payload any) error {
	derived := event.New(route.TargetEventType, payload)
	derived.CorrelationID = source.CorrelationID
	if err := r.publish.Publish(ctx, derived); err != nil {
		r.logger.Error("router publish failed", "route", route.Name, "target_type", route.TargetEventType, "error", err)
		return err
	}

	if !r.emitRouteEvents {
		return nil
	}
	diag := event.New("router.route.matched", map[string]any{
		"routeName":         route.Name,
		"originalEventType": source.Type,
		"targetEventType":   route.TargetEventType,
		"timestamp":         time.Now().UnixMilli(),
	})
	if err := r.publish.Publish(ctx, diag); err != nil {
		r.logger.Error("router diagnostic publish failed", "route", route.Name, "error", err)
	}
	return nil
}
