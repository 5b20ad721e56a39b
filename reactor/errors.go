package reactor

import (
	"fmt"

	"nsh.computer/nsh/transport"
)

// TransportDisconnect is reported when a registered transport can no longer
// carry data, for example when a Send reaches it after its peer went away.
type TransportDisconnect struct {
	ID        ResourceID
	Transport *transport.Transport
	Err       error
}

func (e *TransportDisconnect) Error() string {
	return fmt.Sprintf("transport %s (%s) disconnected: %v", e.ID, e.Transport, e.Err)
}

func (e *TransportDisconnect) Unwrap() error {
	return e.Err
}

// ListenerDisconnect is reported when a listening socket goes away without
// being unregistered.
type ListenerDisconnect struct {
	ID       ResourceID
	Listener *transport.Listener
	Err      error
}

func (e *ListenerDisconnect) Error() string {
	return fmt.Sprintf("listener %s disconnected: %v", e.ID, e.Err)
}

func (e *ListenerDisconnect) Unwrap() error {
	return e.Err
}

// PollError is reported when an action cannot be applied.
type PollError struct {
	Action Action
	Err    error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("cannot apply %s: %v", e.Action, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}
