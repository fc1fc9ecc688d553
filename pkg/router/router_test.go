package router

import (
	"context"
	"testing"

	"github.com/kestrelbyte/reactor/pkg/event"
)

type recordingPublisher struct {
	published []event.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e event.DomainEvent) error {
	p.published = append(p.published, e)
	return nil
}

func TestRouteTransformAndPublish(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(pub, nil)

	if err := r.RegisterRoute(Route{
		Name:            "high-value",
		Predicate:       func(e event.DomainEvent) bool { return amountAbove(e, 10) },
		TargetEventType: "high",
		TransformPayload: func(p any) any {
			m, _ := p.(map[string]any)
			return map[string]any{"amount": m["amount"], "big": true}
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	source := event.New("v", map[string]any{"amount": 15})
	if err := r.HandleEvent(context.Background(), source); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one derived publish, got %d", len(pub.published))
	}
	derived := pub.published[0]
	if derived.Type != "high" {
		t.Fatalf("expected target type 'high', got %s", derived.Type)
	}
	payload, _ := derived.Payload.(map[string]any)
	if payload["amount"] != 15 || payload["big"] != true {
		t.Fatalf("expected transformed payload, got %v", payload)
	}
}

func TestRouteNoMatchPublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(pub, nil)
	_ = r.RegisterRoute(Route{
		Name:            "high-value",
		Predicate:       func(e event.DomainEvent) bool { return amountAbove(e, 10) },
		TargetEventType: "high",
	})

	if err := r.HandleEvent(context.Background(), event.New("v", map[string]any{"amount": 5})); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no publishes for a non-matching event, got %d", len(pub.published))
	}
}

func TestRouteMatchedDiagnosticEvent(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(pub, nil, WithRouteMatchedEvents())
	_ = r.RegisterRoute(Route{
		Name:            "always",
		Predicate:       func(e event.DomainEvent) bool { return true },
		TargetEventType: "derived",
	})

	if err := r.HandleEvent(context.Background(), event.New("source", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("expected derived event + diagnostic event, got %d", len(pub.published))
	}
	diag := pub.published[1]
	if diag.Type != "router.route.matched" {
		t.Fatalf("expected diagnostic event, got %s", diag.Type)
	}
	payload, _ := diag.Payload.(map[string]any)
	if payload["routeName"] != "always" || payload["targetEventType"] != "derived" {
		t.Fatalf("unexpected diagnostic payload: %v", payload)
	}
}

func TestJSONPathRoute(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(pub, nil)
	_ = r.RegisterRoute(Route{
		Name:            "status-ok",
		JSONPath:        "status",
		ExpectedValue:   "ok",
		TargetEventType: "status.ok",
	})

	_ = r.HandleEvent(context.Background(), event.New("health", map[string]any{"status": "ok"}))
	_ = r.HandleEvent(context.Background(), event.New("health", map[string]any{"status": "degraded"}))

	if len(pub.published) != 1 {
		t.Fatalf("expected exactly one match, got %d", len(pub.published))
	}
}

func TestJSONPathNestedAndArray(t *testing.T) {
	v, ok := resolveJSONPath(map[string]any{
		"a": map[string]any{
			"items": []any{map[string]any{"n": 1}, map[string]any{"n": 2}},
		},
	}, "a.items[1].n")
	if !ok || v != 2 {
		t.Fatalf("expected 2, got %v (ok=%v)", v, ok)
	}
}

func TestJSONPathMissingKeyIsNoMatch(t *testing.T) {
	_, ok := resolveJSONPath(map[string]any{"a": nil}, "a.b")
	if ok {
		t.Fatal("expected navigation through nil to report no match")
	}
	_, ok = resolveJSONPath(map[string]any{}, "missing")
	if ok {
		t.Fatal("expected navigation through an absent key to report no match")
	}
}

func TestRouteValidateRejectsBothOrNeitherStrategy(t *testing.T) {
	neither := Route{Name: "x", TargetEventType: "y"}
	if err := neither.Validate(); err == nil {
		t.Fatal("expected validation error when neither predicate nor jsonPath is set")
	}

	both := Route{
		Name:            "x",
		TargetEventType: "y",
		Predicate:       func(event.DomainEvent) bool { return true },
		JSONPath:        "a",
	}
	if err := both.Validate(); err == nil {
		t.Fatal("expected validation error when both predicate and jsonPath are set")
	}
}

func TestUpdateAndRemoveRoute(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(pub, nil)
	route := Route{Name: "r", Predicate: func(event.DomainEvent) bool { return true }, TargetEventType: "d"}
	if err := r.RegisterRoute(route); err != nil {
		t.Fatalf("register: %v", err)
	}

	route.TargetEventType = "d2"
	if err := r.UpdateRoute(route); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := r.GetRouteByName("r")
	if !ok || got.TargetEventType != "d2" {
		t.Fatalf("expected updated route, got %+v", got)
	}

	if err := r.RemoveRoute("r"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := r.GetRouteByName("r"); ok {
		t.Fatal("expected route to be gone after remove")
	}
	if err := r.UpdateRoute(route); err == nil {
		t.Fatal("expected update of a removed route to fail")
	}
}

func amountAbove(e event.DomainEvent, threshold int) bool {
	m, ok := e.Payload.(map[string]any)
	if !ok {
		return false
	}
	amount, ok := m["amount"].(int)
	return ok && amount > threshold
}
