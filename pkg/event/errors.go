package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. Concrete error types below carry
// the context a caller needs; these exist for classification.
var (
	ErrUnknownExtension   = errors.New("extension not found")
	ErrCycleDetected      = errors.New("extension dependency cycle detected")
	ErrMissingDependency  = errors.New("extension dependency not registered")
	ErrDuplicateExtension = errors.New("extension id already registered")
	ErrHasDependents      = errors.New("extension has surviving dependents")
	ErrAggregateNotFound  = errors.New("aggregate not found")
	ErrRouteNotFound      = errors.New("route not found")
	ErrHandlerNotFound    = errors.New("command handler not found")
	ErrFactoryNotFound      = errors.New("aggregate factory not found")
	ErrSnapshotsUnsupported = errors.New("store does not support snapshots")
	ErrBusClosed            = errors.New("event bus is closed")
)

// ValidationError reports malformed input: an empty event type, a
// missing required field, a duplicate extension id, a cycle, a missing
// dependency, or an unknown route on update.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports an unknown aggregate, route, extension, or
// command handler id.
type NotFoundError struct {
	Kind string // "aggregate", "route", "extension", "command_handler", ...
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NewNotFoundError builds a NotFoundError wrapping the matching sentinel.
func NewNotFoundError(kind, id string, sentinel error) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id, Err: sentinel}
}

// ConflictError reports an optimistic-concurrency failure in saveEvents:
// the lowest version in the batch wasn't exactly currentMax+1.
type ConflictError struct {
	AggregateID     string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: aggregate %q expected version %d, got %d",
		e.AggregateID, e.ExpectedVersion, e.ActualVersion)
}

// StorageError wraps a failure from the underlying event store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// HookError reports a failure raised by an extension hook, typically at
// EVENT_BEFORE_PUBLISH where it is fatal to the publish in progress.
type HookError struct {
	Point       string
	ExtensionID string
	Err         error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s (extension %s): %v", e.Point, e.ExtensionID, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// HandlerError reports a subscriber handler panic or returned error. It
// is always logged by the bus and never surfaced to the producer; it
// exists as a concrete type so log lines and tests can identify it.
type HandlerError struct {
	SubscriptionID string
	EventType      string
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %s: %v", e.SubscriptionID, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
