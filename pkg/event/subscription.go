package event

// SubscriptionOptions configure how a subscription behaves once
// registered: delivery priority, one-shot semantics, and diagnostics.
type SubscriptionOptions struct {
	// Priority controls dispatch order; higher runs first. Equal
	// priorities are delivered in insertion order.
	Priority int

	// Once removes the subscription after the first publish of its event
	// type, whether its handler returned an error or its filter skipped
	// the event.
	Once bool

	// Name and Metadata exist purely for diagnostics (Name is reported
	// by Describe) and never affect matching or dispatch order.
	Name     string
	Metadata map[string]any
}

// DefaultSubscriptionOptions is zero priority, not one-shot.
var DefaultSubscriptionOptions = SubscriptionOptions{
	Priority: 0,
	Once:     false,
}

// Subscription is a live binding of a handler to an event type, with an
// optional per-event filter.
type Subscription struct {
	ID        string
	EventType string
	Handler   Handler
	Filter    Filter
	Options   SubscriptionOptions
}

// Info is the public, side-effect-free view of a Subscription returned
// by Describe.
type Info struct {
	ID        string
	EventType string
	Priority  int
	Once      bool
	Name      string
}

// Describe converts a Subscription to its public Info view.
func (s *Subscription) Describe() Info {
	return Info{
		ID:        s.ID,
		EventType: s.EventType,
		Priority:  s.Options.Priority,
		Once:      s.Options.Once,
		Name:      s.Options.Name,
	}
}
