package extension

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kestrelbyte/reactor/pkg/event"
)

// Canonical extension point names (spec.md §6).
const (
	PointSystemInit         = "system.init"
	PointEventBeforePublish = "event.beforePublish"
	PointEventAfterPublish  = "event.afterPublish"
	PointTaskBeforeExecute  = "task.beforeExecute"
	PointTaskAfterExecute   = "task.afterExecute"
)

// System maintains a dependency-ordered registry of extensions and
// runs hook chains at named points with deterministic ordering: hooks
// execute in the extensions' topological dependency order, and within
// one extension by descending hook priority.
type System struct {
	mu         sync.RWMutex
	extensions map[string]Extension
	order      []string // cached topological order, recomputed on change
	points     map[string]bool
	logger     *slog.Logger
}

// New creates an empty ExtensionSystem.
func New(logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		extensions: make(map[string]Extension),
		points:     make(map[string]bool),
		logger:     logger,
	}
}

// RegisterExtensionPoint idempotently registers a named point. Executing
// an unregistered point is not an error — it simply has no hooks — so
// this call exists purely for discovery/introspection.
func (s *System) RegisterExtensionPoint(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[name] = true
}

// RegisterExtension adds ext to the registry. It fails if the id
// already exists, if a declared dependency isn't registered, or if
// adding ext would introduce a dependency cycle.
func (s *System) RegisterExtension(ext Extension) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ext.ID()
	if id == "" {
		return event.NewValidationError("id", "extension id must not be empty")
	}
	if _, exists := s.extensions[id]; exists {
		return fmt.Errorf("%w: %s", event.ErrDuplicateExtension, id)
	}
	for _, dep := range ext.Dependencies() {
		if _, ok := s.extensions[dep]; !ok {
			return fmt.Errorf("%w: extension %s depends on unregistered %s", event.ErrMissingDependency, id, dep)
		}
	}

	trial := make(map[string]Extension, len(s.extensions)+1)
	for k, v := range s.extensions {
		trial[k] = v
	}
	trial[id] = ext

	order, err := topoSort(trial)
	if err != nil {
		return err
	}

	s.extensions = trial
	s.order = order

	s.logger.Debug("extension registered", "extension_id", id, "dependencies", ext.Dependencies())
	return nil
}

// UnregisterExtension removes id from the registry. It fails if any
// surviving extension still declares id as a dependency.
func (s *System) UnregisterExtension(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.extensions[id]; !ok {
		return event.NewNotFoundError("extension", id, event.ErrUnknownExtension)
	}

	for otherID, ext := range s.extensions {
		if otherID == id {
			continue
		}
		for _, dep := range ext.Dependencies() {
			if dep == id {
				return fmt.Errorf("%w: %s depends on %s", event.ErrHasDependents, otherID, id)
			}
		}
	}

	trial := make(map[string]Extension, len(s.extensions)-1)
	for k, v := range s.extensions {
		if k != id {
			trial[k] = v
		}
	}

	order, err := topoSort(trial)
	if err != nil {
		return err
	}

	s.extensions = trial
	s.order = order

	s.logger.Debug("extension unregistered", "extension_id", id)
	return nil
}

// GetExtensions returns every registered extension in topological order.
func (s *System) GetExtensions() []Extension {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Extension, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.extensions[id])
	}
	return out
}

// GetExtension looks up a single extension by id.
func (s *System) GetExtension(id string) (Extension, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ext, ok := s.extensions[id]
	return ext, ok
}

// HasExtension reports whether id is registered.
func (s *System) HasExtension(id string) bool {
	_, ok := s.GetExtension(id)
	return ok
}

// ExecuteExtensionPoint runs every hook registered at name, in
// extension dependency order and (within one extension) descending
// hook priority. Each hook receives the current running Params and
// either returns the next Params or an error, which aborts the chain
// and is returned to the caller.
func (s *System) ExecuteExtensionPoint(ctx context.Context, name string, params Params) (Params, error) {
	s.mu.RLock()
	order := make([]string, len(s.order))
	copy(order, s.order)
	extensions := make(map[string]Extension, len(s.extensions))
	for k, v := range s.extensions {
		extensions[k] = v
	}
	s.mu.RUnlock()

	current := params
	for _, id := range order {
		ext := extensions[id]
		hooks := make([]HookRegistration, 0)
		for _, h := range ext.Hooks() {
			if h.Point == name {
				hooks = append(hooks, h)
			}
		}
		if len(hooks) == 0 {
			continue
		}
		sort.SliceStable(hooks, func(i, j int) bool {
			return hooks[i].Priority > hooks[j].Priority
		})

		for _, h := range hooks {
			if err := ctx.Err(); err != nil {
				return current, err
			}
			next, err := runHook(h, current)
			if err != nil {
				s.logger.Error("extension hook failed",
					"point", name, "extension_id", id, "error", err)
				return current, &event.HookError{Point: name, ExtensionID: id, Err: err}
			}
			current = next
		}
	}

	return current, nil
}

// runHook invokes a hook with panic recovery: a panicking hook is
// treated identically to one that returns an error.
func runHook(h HookRegistration, params Params) (result Params, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h.Hook(params)
}

// topoSort runs Kahn's algorithm over the extension dependency DAG:
// dependency -> dependent edges, so a zero-dependency extension sorts
// first. Returns the offending ids in the error when a cycle remains.
func topoSort(extensions map[string]Extension) ([]string, error) {
	inDegree := make(map[string]int, len(extensions))
	dependents := make(map[string][]string, len(extensions))

	for id, ext := range extensions {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, dep := range ext.Dependencies() {
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := make([]string, 0, len(extensions))
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready) // deterministic order among equally-ready nodes

	order := make([]string, 0, len(extensions))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		newlyReady := make([]string, 0)
		for _, dependent := range dependents[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				newlyReady = append(newlyReady, dependent)
			}
		}
		sort.Strings(newlyReady)
		ready = append(ready, newlyReady...)
	}

	if len(order) != len(extensions) {
		remaining := make([]string, 0)
		for id, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, fmt.Errorf("%w: involving %v", event.ErrCycleDetected, remaining)
	}

	return order, nil
}
