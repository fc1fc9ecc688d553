package event

import (
	"context"
	"testing"
)

func TestNewAssignsIDAndTimestamp(t *testing.T) {
	e := New("widget.created", "payload")
	if e.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if e.Timestamp == 0 {
		t.Fatal("expected a non-zero timestamp")
	}
	if e.Type != "widget.created" || e.Payload != "payload" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestValidateRejectsEmptyType(t *testing.T) {
	e := New("", nil)
	e.Type = ""
	if err := e.Validate(); err == nil {
		t.Fatal("expected validation error for empty type")
	}
}

func TestWithMetadataDoesNotMutateOriginal(t *testing.T) {
	e := New("t", nil)
	annotated := e.WithMetadata("replayed", true)
	if e.Metadata != nil {
		t.Fatal("expected original event's metadata untouched")
	}
	if v, _ := annotated.Metadata["replayed"].(bool); !v {
		t.Fatal("expected annotated copy to carry the new metadata key")
	}
}

func TestWithTypeAssignsFreshID(t *testing.T) {
	e := New("t", nil)
	derived := e.WithType("u")
	if derived.Type != "u" {
		t.Fatalf("expected type u, got %s", derived.Type)
	}
	if derived.ID == e.ID {
		t.Fatal("expected a fresh id for the derived event")
	}
}

func TestWithPayloadReplacesPayloadOnly(t *testing.T) {
	e := New("t", 1).WithMetadata("k", "v")
	replaced := e.WithPayload(2)
	if replaced.Payload != 2 {
		t.Fatalf("expected payload 2, got %v", replaced.Payload)
	}
	if replaced.Type != e.Type || replaced.Metadata["k"] != "v" {
		t.Fatal("expected other fields preserved")
	}
}

func TestPayloadAsSucceedsAndFails(t *testing.T) {
	e := New("t", 42)
	n, err := PayloadAs[int](e)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %v (err %v)", n, err)
	}

	_, err = PayloadAs[string](e)
	if err == nil {
		t.Fatal("expected a type mismatch error")
	}
}

func TestTypedHandlerRejectsMismatchedPayload(t *testing.T) {
	h := TypedHandler(func(ctx context.Context, n int) error { return nil })
	if err := h(context.Background(), "not an int"); err == nil {
		t.Fatal("expected mismatched payload to produce an error")
	}
	if err := h(context.Background(), 5); err != nil {
		t.Fatalf("expected no error for matching payload, got %v", err)
	}
}
