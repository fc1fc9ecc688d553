package router

import (
	"encoding/json"
	"reflect"

	"github.com/kestrelbyte/reactor/pkg/event"
)

// Route is a content-based rule: whenever Matches(e) is true, a
// transformed copy of e is republished as TargetEventType. A route
// matches either by an explicit Predicate or by comparing the value at
// JSONPath against ExpectedValue.
type Route struct {
	Name             string
	Predicate        event.Filter
	JSONPath         string
	ExpectedValue    any
	TargetEventType  string
	TransformPayload func(any) any
}

// Validate checks the invariants a route must satisfy before it can be
// registered: a name, a target type distinct from a no-op, and exactly
// one matching strategy (predicate XOR json path).
func (r Route) Validate() error {
	if r.Name == "" {
		return event.NewValidationError("name", "route name must not be empty")
	}
	if r.TargetEventType == "" {
		return event.NewValidationError("targetEventType", "route target event type must not be empty")
	}
	hasPredicate := r.Predicate != nil
	hasJSONPath := r.JSONPath != ""
	if hasPredicate == hasJSONPath {
		return event.NewValidationError("route", "exactly one of predicate or jsonPath+expectedValue must be set")
	}
	return nil
}

// Matches reports whether r applies to e, using r.Predicate if set,
// otherwise resolving r.JSONPath against e.Payload and comparing
// strictly to r.ExpectedValue. Navigation through nil/absent keys is
// "no match", never an error.
func (r Route) Matches(e event.DomainEvent) bool {
	if r.Predicate != nil {
		return r.Predicate(e)
	}
	v, ok := resolveJSONPath(asGenericValue(e.Payload), r.JSONPath)
	if !ok {
		return false
	}
	return reflect.DeepEqual(v, r.ExpectedValue)
}

// asGenericValue projects an arbitrary payload onto the map[string]any
// / []any shape resolveJSONPath navigates. Payloads already in that
// shape pass through unchanged; anything else (a struct payload) is
// round-tripped through JSON, the cheapest correct way to walk a
// dotted path over a value whose concrete type the router doesn't know.
func asGenericValue(payload any) any {
	switch payload.(type) {
	case map[string]any, []any, nil:
		return payload
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil
	}
	return generic
}

// apply computes the transformed payload for a match, falling back to
// the original payload when no TransformPayload is set.
func (r Route) apply(payload any) any {
	if r.TransformPayload == nil {
		return payload
	}
	return r.TransformPayload(payload)
}
