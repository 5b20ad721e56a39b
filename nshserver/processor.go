package nshserver

import (
	"fmt"
	"net"
	"os/exec"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"nsh.computer/nsh/command"
	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
	"nsh.computer/nsh/reactor"
	"nsh.computer/nsh/session"
	"nsh.computer/nsh/transport"
)

// Fixed replies. Each is followed by the connection being unregistered.
const (
	TokenNonUTF8Command = "NON_UTF8_COMMAND"
	TokenInvalidCommand = "INVALID_COMMAND"
	TokenUnauthorized   = "UNAUTHORIZED"
)

// FailurePrefix starts the reply sent when a forward cannot be started.
const FailurePrefix = "Failure: "

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// Signer is the identity of this node.
	Signer *keys.SigningKeyPair

	// Proxy controls how forwards reach the next hop, including the dial
	// timeout.
	Proxy session.ProxyConfig

	// AuthorizedKeys restricts which peers may send commands. Nil allows
	// every peer.
	AuthorizedKeys *core.AuthorizedKeys

	// Hops resolves hop aliases in FORWARD commands. Nil accepts literal hops
	// only.
	Hops command.HopResolver

	Log *logrus.Entry
}

// Processor is the Delegate of an nsh node. It executes ECHO locally and
// forwards commands to other nodes.
//
// ECHO runs the local shell synchronously on the reactor goroutine, stalling
// every other connection while it runs.
type Processor struct {
	signer     *keys.SigningKeyPair
	proxy      session.ProxyConfig
	authorized *core.AuthorizedKeys
	hops       command.HopResolver
	log        *logrus.Entry

	echo func() ([]byte, error)

	// pending holds the forward waiting on each outbound transport, keyed by
	// descriptor, until the transport is established or terminates.
	pending map[core.Fd]pendingForward

	// Relay links are outbound transports whose command has been delivered.
	// The next message on one is the reply of the next hop.
	relays    map[reactor.ResourceID]core.Fd
	relayByFd map[core.Fd]reactor.ResourceID
}

// pendingForward is a command to deliver once an outbound transport is
// established, and the connection that asked for it.
type pendingForward struct {
	requester reactor.ResourceID
	cmd       command.LocalCommand
}

var _ Delegate = &Processor{}
var _ Reaper = &Processor{}

// NewProcessor returns a Processor for config.
func NewProcessor(config ProcessorConfig) *Processor {
	log := config.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Processor{
		signer:     config.Signer,
		proxy:      config.Proxy,
		authorized: config.AuthorizedKeys,
		hops:       config.Hops,
		log:        log.WithField("component", "processor"),
		echo:       runEcho,
		pending:    make(map[core.Fd]pendingForward),
		relays:     make(map[reactor.ResourceID]core.Fd),
		relayByFd:  make(map[core.Fd]reactor.ResourceID),
	}
}

func runEcho() ([]byte, error) {
	return exec.Command("sh", "-c", "echo").Output()
}

// Accept implements Delegate.
func (p *Processor) Accept(conn net.Conn) (*session.Session, error) {
	return session.Accept(conn, p.signer), nil
}

// NewClient implements Delegate. It delivers the pending command of fd, if
// any. Otherwise the peer dialed us, and is checked against the authorized
// keys.
func (p *Processor) NewClient(fd core.Fd, id reactor.ResourceID, identity keys.SigningPublicKey) []reactor.Action {
	p.log.Debugf("remote %s (%s) is connected and assigned id %s", identity, fd, id)
	if f, ok := p.pending[fd]; ok {
		delete(p.pending, fd)
		p.relays[id] = fd
		p.relayByFd[fd] = id
		p.log.Debugf("sending queued %q for %s to %s", f.cmd, f.requester, id)
		return []reactor.Action{reactor.Send(id, []byte(f.cmd.String()))}
	}
	if p.authorized != nil && !p.authorized.Allowed(identity) {
		p.log.Warnf("rejecting unauthorized peer %s on %s", identity, id)
		return []reactor.Action{
			reactor.Send(id, []byte(TokenUnauthorized)),
			reactor.UnregisterTransport(id),
		}
	}
	return nil
}

// Input implements Delegate.
func (p *Processor) Input(id reactor.ResourceID, data []byte) []reactor.Action {
	if fd, ok := p.relays[id]; ok {
		delete(p.relays, id)
		delete(p.relayByFd, fd)
		p.log.Infof("forwarded command on %s answered with %q", id, data)
		return []reactor.Action{reactor.UnregisterTransport(id)}
	}

	if !utf8.Valid(data) {
		p.log.Warnf("non-UTF8 command from %s", id)
		return []reactor.Action{
			reactor.Send(id, []byte(TokenNonUTF8Command)),
			reactor.UnregisterTransport(id),
		}
	}
	cmd, err := command.Parse(string(data), p.hops)
	if err != nil {
		p.log.Warnf("invalid command from %s: %s", id, err)
		return []reactor.Action{
			reactor.Send(id, []byte(TokenInvalidCommand)),
			reactor.UnregisterTransport(id),
		}
	}

	p.log.Infof("executing '%s' for %s", cmd, id)
	if cmd.Forward != nil {
		return p.forward(id, cmd.Forward)
	}
	switch cmd.Local {
	case command.Echo:
		out, err := p.echo()
		if err != nil {
			p.log.Errorf("error executing command: %s", err)
			return []reactor.Action{
				reactor.Send(id, []byte(err.Error())),
				reactor.UnregisterTransport(id),
			}
		}
		p.log.Debugf("command executed successfully; %d bytes of output collected", len(out))
		return []reactor.Action{reactor.Send(id, out)}
	default:
		return []reactor.Action{
			reactor.Send(id, []byte(TokenInvalidCommand)),
			reactor.UnregisterTransport(id),
		}
	}
}

func (p *Processor) forward(id reactor.ResourceID, f *command.Forward) []reactor.Action {
	s, err := session.Connect(f.Hop.Addr, f.Hop.ID, p.signer, p.proxy)
	if err != nil {
		p.log.Warnf("cannot forward to %s: %s", f.Hop, err)
		return []reactor.Action{reactor.Send(id, failure(err))}
	}
	t, err := transport.WithSession(s, session.Outbound)
	if err != nil {
		s.Close()
		return []reactor.Action{
			reactor.Send(id, failure(err)),
			reactor.UnregisterTransport(id),
		}
	}
	p.pending[t.Fd()] = pendingForward{requester: id, cmd: f.Command}
	p.log.Debugf("forwarding %s to %s over %s", f.Command, f.Hop, t.Fd())
	return []reactor.Action{reactor.RegisterTransport(t)}
}

func failure(err error) []byte {
	return []byte(fmt.Sprintf("%s%s", FailurePrefix, err))
}

// Terminated implements Reaper. A forward whose transport never got
// established is dropped here, and its requester is told why. The requester
// stays connected.
func (p *Processor) Terminated(fd core.Fd, err error) []reactor.Action {
	if id, ok := p.relayByFd[fd]; ok {
		delete(p.relays, id)
		delete(p.relayByFd, fd)
	}
	f, ok := p.pending[fd]
	if !ok {
		return nil
	}
	delete(p.pending, fd)
	if err == nil {
		err = transport.ErrClosed
	}
	p.log.Warnf("dropping %s queued for %s: connection terminated before handshake: %s", f.cmd, fd, err)
	return []reactor.Action{reactor.Send(f.requester, failure(err))}
}
