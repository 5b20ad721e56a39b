package nshserver

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"nsh.computer/nsh/command"
	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
	"nsh.computer/nsh/reactor"
	"nsh.computer/nsh/session"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.TraceLevel)
	return logrus.NewEntry(l)
}

func newTestProcessor(t *testing.T, mod func(c *ProcessorConfig)) *Processor {
	c := ProcessorConfig{
		Signer: keys.GenerateNewSigningKeyPair(),
		Proxy:  session.ProxyConfig{Timeout: time.Second},
		Log:    testLog(),
	}
	if mod != nil {
		mod(&c)
	}
	p := NewProcessor(c)
	t.Cleanup(func() {
		assert.Check(t, cmp.Len(p.pending, 0))
	})
	return p
}

func sendOf(t *testing.T, a reactor.Action, id reactor.ResourceID) string {
	t.Helper()
	assert.Check(t, cmp.Equal(reactor.ActionSend, a.Kind))
	assert.Check(t, cmp.Equal(id, a.ID))
	return string(a.Payload)
}

func isUnregister(t *testing.T, a reactor.Action, id reactor.ResourceID) {
	t.Helper()
	assert.Check(t, cmp.DeepEqual(reactor.UnregisterTransport(id), a))
}

func TestInputNonUTF8(t *testing.T) {
	p := newTestProcessor(t, nil)
	for _, in := range [][]byte{{0xff}, {0xc3, 0x28}, []byte("ECHO\xfe")} {
		actions := p.Input(3, in)
		assert.Assert(t, cmp.Len(actions, 2))
		assert.Check(t, cmp.Equal(TokenNonUTF8Command, sendOf(t, actions[0], 3)))
		isUnregister(t, actions[1], 3)
	}
}

func TestInputInvalidCommand(t *testing.T) {
	p := newTestProcessor(t, nil)
	for _, in := range []string{"", "LS", "echo", "ECHO ECHO", "FORWARD nowhere ECHO", "FORWARD"} {
		actions := p.Input(4, []byte(in))
		assert.Assert(t, cmp.Len(actions, 2), "input %q", in)
		assert.Check(t, cmp.Equal(TokenInvalidCommand, sendOf(t, actions[0], 4)))
		isUnregister(t, actions[1], 4)
	}
}

func TestInputEcho(t *testing.T) {
	p := newTestProcessor(t, nil)
	actions := p.Input(5, []byte("ECHO\n"))
	assert.Assert(t, cmp.Len(actions, 1))
	assert.Check(t, cmp.Equal("\n", sendOf(t, actions[0], 5)))
}

func TestInputEchoFailure(t *testing.T) {
	p := newTestProcessor(t, nil)
	p.echo = func() ([]byte, error) {
		return nil, errors.New("exec: \"sh\": executable file not found in $PATH")
	}
	actions := p.Input(5, []byte("ECHO"))
	assert.Assert(t, cmp.Len(actions, 2))
	assert.Check(t, cmp.Contains(sendOf(t, actions[0], 5), "executable file not found"))
	isUnregister(t, actions[1], 5)
}

func TestForwardDialFailure(t *testing.T) {
	p := newTestProcessor(t, nil)
	hop := keys.GenerateNewSigningKeyPair().Public
	// Onion hosts need a proxy and none is configured.
	in := "FORWARD " + hop.String() + "@abcdefghijklmnop.onion:4242 ECHO"
	actions := p.Input(6, []byte(in))
	assert.Assert(t, cmp.Len(actions, 1))
	reply := sendOf(t, actions[0], 6)
	assert.Check(t, strings.HasPrefix(reply, FailurePrefix), reply)
	assert.Check(t, cmp.Len(p.pending, 0))
}

// liveAddr returns the address of a loopback listener that stays open until
// the test ends.
func liveAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	t.Cleanup(func() { l.Close() })
	return l.Addr().String()
}

// forward runs a successful FORWARD on p and returns the registered transport
// descriptor.
func forward(t *testing.T, p *Processor, id reactor.ResourceID, hop keys.SigningPublicKey) core.Fd {
	t.Helper()
	in := "FORWARD " + hop.String() + "@" + liveAddr(t) + " ECHO"
	actions := p.Input(id, []byte(in))
	assert.Assert(t, cmp.Len(actions, 1))
	a := actions[0]
	assert.Assert(t, cmp.Equal(reactor.ActionRegisterTransport, a.Kind))
	t.Cleanup(func() { a.Transport.Close() })

	fd := a.Transport.Fd()
	assert.Check(t, cmp.Equal(session.Outbound, a.Transport.Direction()))
	assert.Check(t, cmp.Len(p.pending, 1))
	f, ok := p.pending[fd]
	assert.Check(t, ok)
	assert.Check(t, cmp.Equal(command.Echo, f.cmd))
	assert.Check(t, cmp.Equal(id, f.requester))
	return fd
}

func TestForwardDeliversOnce(t *testing.T) {
	p := newTestProcessor(t, nil)
	hop := keys.GenerateNewSigningKeyPair().Public
	fd := forward(t, p, 7, hop)

	actions := p.NewClient(fd, 8, hop)
	assert.Assert(t, cmp.Len(actions, 1))
	assert.Check(t, cmp.Equal("ECHO", sendOf(t, actions[0], 8)))
	assert.Check(t, cmp.Len(p.pending, 0))

	assert.Check(t, cmp.Len(p.NewClient(fd, 8, hop), 0))

	// The reply of the next hop closes the relay link.
	actions = p.Input(8, []byte("\n"))
	assert.Assert(t, cmp.Len(actions, 1))
	isUnregister(t, actions[0], 8)
	assert.Check(t, cmp.Len(p.relays, 0))
	assert.Check(t, cmp.Len(p.relayByFd, 0))
}

func TestForwardAlias(t *testing.T) {
	hop := keys.GenerateNewSigningKeyPair().Public
	addr, err := core.ParseNetAddr(liveAddr(t))
	assert.NilError(t, err)
	p := newTestProcessor(t, func(c *ProcessorConfig) {
		c.Hops = core.KnownHops{"exit": {Alias: "exit", Address: addr, Identity: hop}}
	})
	actions := p.Input(9, []byte("FORWARD exit ECHO"))
	assert.Assert(t, cmp.Len(actions, 1))
	a := actions[0]
	assert.Assert(t, cmp.Equal(reactor.ActionRegisterTransport, a.Kind))
	defer a.Transport.Close()
	assert.Check(t, cmp.Equal(reactor.ResourceID(9), p.pending[a.Transport.Fd()].requester))
	assert.Check(t, cmp.Len(p.Terminated(a.Transport.Fd(), nil), 1))
}

func TestReapOnTerminated(t *testing.T) {
	p := newTestProcessor(t, nil)
	hop := keys.GenerateNewSigningKeyPair().Public
	fd := forward(t, p, 10, hop)

	actions := p.Terminated(fd, errors.New("dial tcp 127.0.0.1:4242: connect: connection refused"))
	assert.Assert(t, cmp.Len(actions, 1))
	reply := sendOf(t, actions[0], 10)
	assert.Check(t, strings.HasPrefix(reply, FailurePrefix), reply)
	assert.Check(t, cmp.Contains(reply, "connection refused"))
	assert.Check(t, cmp.Len(p.pending, 0))
	assert.Check(t, cmp.Len(p.NewClient(fd, 11, hop), 0))

	// The failure is reported once, and unknown descriptors are ignored.
	assert.Check(t, cmp.Len(p.Terminated(fd, errors.New("again")), 0))
	assert.Check(t, cmp.Len(p.Terminated(core.NextFd(), nil), 0))
}

func TestRelayTerminated(t *testing.T) {
	p := newTestProcessor(t, nil)
	hop := keys.GenerateNewSigningKeyPair().Public
	fd := forward(t, p, 12, hop)
	assert.Assert(t, cmp.Len(p.NewClient(fd, 13, hop), 1))
	assert.Check(t, cmp.Len(p.Terminated(fd, errors.New("reset")), 0))
	assert.Check(t, cmp.Len(p.relays, 0))
	assert.Check(t, cmp.Len(p.relayByFd, 0))
}

func TestNewClientAuthorization(t *testing.T) {
	allowed := keys.GenerateNewSigningKeyPair().Public
	other := keys.GenerateNewSigningKeyPair().Public
	p := newTestProcessor(t, func(c *ProcessorConfig) {
		c.AuthorizedKeys = &core.AuthorizedKeys{Keys: []keys.SigningPublicKey{allowed}}
	})

	assert.Check(t, cmp.Len(p.NewClient(core.NextFd(), 14, allowed), 0))

	actions := p.NewClient(core.NextFd(), 15, other)
	assert.Assert(t, cmp.Len(actions, 2))
	assert.Check(t, cmp.Equal(TokenUnauthorized, sendOf(t, actions[0], 15)))
	isUnregister(t, actions[1], 15)
}

func TestNewClientWithoutPending(t *testing.T) {
	p := newTestProcessor(t, nil)
	assert.Check(t, cmp.Len(p.NewClient(core.NextFd(), 16, keys.GenerateNewSigningKeyPair().Public), 0))
}
