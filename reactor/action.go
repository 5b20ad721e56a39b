package reactor

import (
	"fmt"
	"time"

	"nsh.computer/nsh/transport"
)

// ResourceID is the stable identity the reactor assigns to a registered
// resource. Identities are never reused.
type ResourceID uint64

func (id ResourceID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// ResourceType is the kind of a registered resource.
type ResourceType int

// Resource types.
const (
	Listener ResourceType = iota
	Transport
)

func (t ResourceType) String() string {
	switch t {
	case Listener:
		return "listener"
	case Transport:
		return "transport"
	default:
		return fmt.Sprintf("ResourceType(%d)", int(t))
	}
}

// ActionKind says what an Action asks of the reactor.
type ActionKind int

// Action kinds.
const (
	ActionRegisterListener ActionKind = iota + 1
	ActionRegisterTransport
	ActionUnregisterListener
	ActionUnregisterTransport
	ActionSend
	ActionSetTimer
)

func (k ActionKind) String() string {
	switch k {
	case ActionRegisterListener:
		return "register-listener"
	case ActionRegisterTransport:
		return "register-transport"
	case ActionUnregisterListener:
		return "unregister-listener"
	case ActionUnregisterTransport:
		return "unregister-transport"
	case ActionSend:
		return "send"
	case ActionSetTimer:
		return "set-timer"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is a one-way instruction to the reactor. Build one with the
// constructors below; only the fields relevant to Kind are set.
type Action struct {
	Kind      ActionKind
	ID        ResourceID
	Listener  *transport.Listener
	Transport *transport.Transport
	Payload   []byte
	Delay     time.Duration
}

// RegisterListener asks the reactor to start accepting on l.
func RegisterListener(l *transport.Listener) Action {
	return Action{Kind: ActionRegisterListener, Listener: l}
}

// RegisterTransport asks the reactor to drive t.
func RegisterTransport(t *transport.Transport) Action {
	return Action{Kind: ActionRegisterTransport, Transport: t}
}

// UnregisterListener closes the listener id and hands it back.
func UnregisterListener(id ResourceID) Action {
	return Action{Kind: ActionUnregisterListener, ID: id}
}

// UnregisterTransport closes the transport id and hands it back.
func UnregisterTransport(id ResourceID) Action {
	return Action{Kind: ActionUnregisterTransport, ID: id}
}

// Send queues payload on the transport id.
func Send(id ResourceID, payload []byte) Action {
	return Action{Kind: ActionSend, ID: id, Payload: payload}
}

// SetTimer asks for one HandleTimer call after d.
func SetTimer(d time.Duration) Action {
	return Action{Kind: ActionSetTimer, Delay: d}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionRegisterListener:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Listener)
	case ActionRegisterTransport:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Transport)
	case ActionSend:
		return fmt.Sprintf("%s(%s, %d bytes)", a.Kind, a.ID, len(a.Payload))
	case ActionSetTimer:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Delay)
	default:
		return fmt.Sprintf("%s(%s)", a.Kind, a.ID)
	}
}
