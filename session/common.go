package session

import (
	"fmt"

	"github.com/pkg/errors"
)

// ProtocolName names the handshake. It is also mixed into the prologue, so
// peers that disagree on it fail the handshake.
const ProtocolName = "Noise_XK_25519_ChaChaPoly_SHA256"

// Prologue binds the handshake to this protocol version.
const Prologue = "nsh-session-v1"

// Size constants.
const (
	LengthLen          = 2
	MaxMessageSize     = 65535
	TagLen             = 16
	MaxPlaintextSize   = MaxMessageSize - TagLen
	identityPayloadLen = 32
)

// ErrNoRemoteIdentity is returned when an outbound session is requested
// without pinning the identity of the remote node.
var ErrNoRemoteIdentity = errors.New("outbound session requires a pinned remote identity")

// ErrNoProxy is returned when the destination can only be reached through a
// proxy but none is configured.
var ErrNoProxy = errors.New("destination requires a proxy but none is configured")

// ErrIdentityMismatch is returned when the identity sent by the initiator does
// not match the static key it authenticated with.
var ErrIdentityMismatch = errors.New("peer identity does not match handshake key")

// ErrNotEstablished is returned when application data is sent or received
// before the handshake completes.
var ErrNotEstablished = errors.New("session is not established")

// ErrTerminated is returned by every operation after Close.
var ErrTerminated = errors.New("session terminated")

// ErrMessageTooLarge is returned when a message exceeds MaxPlaintextSize.
var ErrMessageTooLarge = errors.New("message too large")

// ErrWrongState is returned when Establish is called twice.
var ErrWrongState = errors.New("operation not valid in current session state")

// Direction is the side of a session. It is fixed at creation and decides the
// handshake role: outbound sessions initiate.
type Direction int

// Directions.
const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// State is the lifecycle state of a session.
type State int

// Session states, in lifecycle order.
const (
	StateDialing State = iota
	StateAccepting
	StateHandshaking
	StateEstablished
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDialing:
		return "dialing"
	case StateAccepting:
		return "accepting"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
