package nshserver

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
	"nsh.computer/nsh/reactor"
	"nsh.computer/nsh/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type node struct {
	signer *keys.SigningKeyPair
	addr   core.NetAddr
}

// startNode runs a Server with a Processor on a loopback port until the test
// ends.
func startNode(t *testing.T) *node {
	signer := keys.GenerateNewSigningKeyPair()
	p := NewProcessor(ProcessorConfig{
		Signer: signer,
		Proxy:  session.ProxyConfig{Timeout: 5 * time.Second},
		Log:    testLog(),
	})
	s, err := New("127.0.0.1:0", p, testLog())
	assert.NilError(t, err)
	addr, err := core.ParseNetAddr(s.Addr().String())
	assert.NilError(t, err)

	r := reactor.New(s, reactor.Config{TickInterval: 50 * time.Millisecond, Log: testLog()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.Check(t, errors.Is(<-done, context.Canceled))
	})
	return &node{signer: signer, addr: addr}
}

func dial(t *testing.T, n *node) *session.Session {
	s, err := session.Connect(n.addr, n.signer.Public, keys.GenerateNewSigningKeyPair(), session.ProxyConfig{Timeout: 5 * time.Second})
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })
	assert.NilError(t, s.Establish(context.Background()))
	return s
}

func roundTrip(t *testing.T, s *session.Session, msg string) string {
	t.Helper()
	assert.NilError(t, s.WriteMsg([]byte(msg)))
	reply, err := s.ReadMsg()
	assert.NilError(t, err)
	return string(reply)
}

func TestNodeEcho(t *testing.T) {
	n := startNode(t)
	s := dial(t, n)
	assert.Check(t, cmp.Equal("\n", roundTrip(t, s, "ECHO")))
	assert.Check(t, cmp.Equal("\n", roundTrip(t, s, "ECHO")))
}

func TestNodeInvalidCommandCloses(t *testing.T) {
	n := startNode(t)
	s := dial(t, n)
	assert.Check(t, cmp.Equal(TokenInvalidCommand, roundTrip(t, s, "REBOOT")))
	_, err := s.ReadMsg()
	assert.Check(t, err != nil)
}

func TestNodeForwardDialFailureKeepsConnection(t *testing.T) {
	n := startNode(t)
	s := dial(t, n)
	hop := keys.GenerateNewSigningKeyPair().Public
	reply := roundTrip(t, s, "FORWARD "+hop.String()+"@abcdefghijklmnop.onion:4242 ECHO")
	assert.Check(t, strings.HasPrefix(reply, FailurePrefix), reply)
	assert.Check(t, cmp.Equal("\n", roundTrip(t, s, "ECHO")))
}

func TestNodeForwardRefused(t *testing.T) {
	n := startNode(t)
	s := dial(t, n)

	// Nothing listens on a port whose listener has been closed.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	refused := l.Addr().String()
	assert.NilError(t, l.Close())

	hop := keys.GenerateNewSigningKeyPair().Public
	reply := roundTrip(t, s, "FORWARD "+hop.String()+"@"+refused+" ECHO")
	assert.Check(t, strings.HasPrefix(reply, FailurePrefix), reply)

	// The requester stays connected.
	assert.Check(t, cmp.Equal("\n", roundTrip(t, s, "ECHO")))
}

func TestNodeForward(t *testing.T) {
	n := startNode(t)

	// The next hop is played by the test.
	next := keys.GenerateNewSigningKeyPair()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	defer l.Close()

	s := dial(t, n)
	assert.NilError(t, s.WriteMsg([]byte("FORWARD "+next.Public.String()+"@"+l.Addr().String()+" ECHO")))

	conn, err := l.Accept()
	assert.NilError(t, err)
	in := session.Accept(conn, next)
	defer in.Close()
	assert.NilError(t, in.Establish(context.Background()))
	id, ok := in.RemoteIdentity()
	assert.Assert(t, ok)
	assert.Check(t, cmp.Equal(n.signer.Public, id))

	cmd, err := in.ReadMsg()
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal("ECHO", string(cmd)))

	// The relay link is closed once the next hop answers.
	assert.NilError(t, in.WriteMsg([]byte("\n")))
	_, err = in.ReadMsg()
	assert.Check(t, err != nil)

	// The requester's own connection stays usable.
	assert.Check(t, cmp.Equal("\n", roundTrip(t, s, "ECHO")))
}

func TestNodeChain(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	s := dial(t, a)
	assert.NilError(t, s.WriteMsg([]byte("FORWARD "+b.signer.Public.String()+"@"+b.addr.String()+" ECHO")))
	assert.Check(t, cmp.Equal("\n", roundTrip(t, s, "ECHO")))
}
