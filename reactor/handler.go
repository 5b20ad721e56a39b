package reactor

import (
	"time"

	"nsh.computer/nsh/transport"
)

// Handler receives every event of a reactor. All methods are called from the
// reactor goroutine, one at a time, so implementations need no locking.
//
// After each call the reactor drains Next and applies the actions in order.
type Handler interface {
	// Tick is called every tick interval.
	Tick(now time.Time)

	// HandleTimer is called when a timer set with SetTimer fires.
	HandleTimer()

	HandleListenerEvent(id ResourceID, ev transport.ListenerEvent)
	HandleTransportEvent(id ResourceID, ev transport.Event)

	// HandleRegistered is called once a resource has an identity.
	HandleRegistered(id ResourceID, ty ResourceType, name string)

	// HandleError is called with a *TransportDisconnect, *ListenerDisconnect
	// or *PollError.
	HandleError(err error)

	// HandoverListener and HandoverTransport return unregistered resources,
	// already closed, to the handler.
	HandoverListener(id ResourceID, l *transport.Listener)
	HandoverTransport(id ResourceID, t *transport.Transport)

	// Next pops the next queued action.
	Next() (Action, bool)
}
