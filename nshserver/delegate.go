package nshserver

import (
	"net"

	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
	"nsh.computer/nsh/reactor"
	"nsh.computer/nsh/session"
)

// Delegate holds the application logic of a Server.
type Delegate interface {
	// Accept turns an accepted connection into an inbound session.
	Accept(conn net.Conn) (*session.Session, error)

	// NewClient is called when the transport with pre-identity descriptor fd,
	// registered as id, completes its handshake with identity.
	NewClient(fd core.Fd, id reactor.ResourceID, identity keys.SigningPublicKey) []reactor.Action

	// Input is called with each message received on id.
	Input(id reactor.ResourceID, data []byte) []reactor.Action
}

// Reaper is implemented by delegates that keep state keyed by descriptor. The
// Server calls Terminated for every transport that terminates, whether or not
// it was ever established, and queues the returned actions before
// unregistering the transport.
type Reaper interface {
	Terminated(fd core.Fd, err error) []reactor.Action
}
