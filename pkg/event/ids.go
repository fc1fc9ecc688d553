package event

import "github.com/google/uuid"

// NewID returns a unique string identifier suitable for a DomainEvent,
// Subscription, or correlation id. The underlying generator is a random
// (v4) UUID; callers that need their own scheme may assign IDs before
// handing events to the bus — the bus only fills in a blank ID.
func NewID() string {
	return uuid.NewString()
}
