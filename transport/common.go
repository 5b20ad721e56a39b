// Package transport wraps secure sessions and listening sockets as resources
// that a reactor can register, and turns their socket activity into lifecycle
// events.
package transport

import (
	"fmt"
	"net"

	"github.com/pkg/errors"

	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
)

// ErrDirectionMismatch is returned when a session is wrapped with a direction
// other than the one it was created with.
var ErrDirectionMismatch = errors.New("session direction does not match transport direction")

// ErrClosed is returned by Send after the transport is closed.
var ErrClosed = errors.New("transport closed")

// Event is a session lifecycle event. For one transport, events are emitted in
// order: Established, zero or more Data, then Terminated. A transport that
// fails before its handshake completes emits only Terminated.
type Event interface {
	isEvent()
}

// Established is emitted once the handshake completes.
type Established struct {
	// Fd is the pre-identity descriptor of the transport.
	Fd core.Fd

	// Identity is the authenticated signing identity of the peer.
	Identity keys.SigningPublicKey
}

// Data carries one decrypted message. Bytes is owned by the receiver.
type Data struct {
	Bytes []byte
}

// Terminated is emitted when the session fails or the peer disconnects.
type Terminated struct {
	Fd  core.Fd
	Err error
}

func (Established) isEvent() {}
func (Data) isEvent()        {}
func (Terminated) isEvent()  {}

func (e Established) String() string {
	return fmt.Sprintf("established(%s, %s)", e.Fd, e.Identity)
}

func (e Data) String() string {
	return fmt.Sprintf("data(%d bytes)", len(e.Bytes))
}

func (e Terminated) String() string {
	return fmt.Sprintf("terminated(%s, %v)", e.Fd, e.Err)
}

// ListenerEvent is emitted by a Listener.
type ListenerEvent interface {
	isListenerEvent()
}

// Accepted carries a newly accepted connection.
type Accepted struct {
	Conn net.Conn
}

// ListenerFailure reports an accept error the listener survived.
type ListenerFailure struct {
	Err error
}

func (Accepted) isListenerEvent()        {}
func (ListenerFailure) isListenerEvent() {}
