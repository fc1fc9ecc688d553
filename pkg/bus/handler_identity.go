package bus

import (
	"reflect"

	"github.com/kestrelbyte/reactor/pkg/event"
)

// handlerPointer gives UnsubscribeHandler a best-effort notion of
// function identity: Go funcs aren't comparable, but two references to
// the same top-level function share the same underlying code pointer.
// Closures created from the same function literal also share one code
// pointer whatever state they capture, so they cannot be told apart:
// UnsubscribeHandler removes the first of them registered on the type.
func handlerPointer(h event.Handler) uintptr {
	if h == nil {
		return 0
	}
	return reflect.ValueOf(h).Pointer()
}
