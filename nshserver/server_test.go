package nshserver

import (
	"errors"
	"net"
	"testing"

	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
	"nsh.computer/nsh/reactor"
	"nsh.computer/nsh/session"
	"nsh.computer/nsh/transport"
)

type fakeDelegate struct {
	signer     *keys.SigningKeyPair
	acceptErr  error
	newClient  func(fd core.Fd, id reactor.ResourceID) []reactor.Action
	inputs     [][]byte
	terminated []core.Fd
	reap       []reactor.Action
}

func (d *fakeDelegate) Accept(conn net.Conn) (*session.Session, error) {
	if d.acceptErr != nil {
		return nil, d.acceptErr
	}
	return session.Accept(conn, d.signer), nil
}

func (d *fakeDelegate) NewClient(fd core.Fd, id reactor.ResourceID, identity keys.SigningPublicKey) []reactor.Action {
	if d.newClient == nil {
		return nil
	}
	return d.newClient(fd, id)
}

func (d *fakeDelegate) Input(id reactor.ResourceID, data []byte) []reactor.Action {
	d.inputs = append(d.inputs, data)
	return []reactor.Action{reactor.Send(id, data)}
}

func (d *fakeDelegate) Terminated(fd core.Fd, err error) []reactor.Action {
	d.terminated = append(d.terminated, fd)
	return d.reap
}

func newTestServer(t *testing.T, d Delegate) *Server {
	s, err := New("127.0.0.1:0", d, testLog())
	assert.NilError(t, err)
	t.Cleanup(func() { s.listener.Close() })

	a, ok := s.Next()
	assert.Assert(t, ok)
	assert.Check(t, cmp.Equal(reactor.ActionRegisterListener, a.Kind))
	assert.Check(t, a.Listener == s.listener)
	return s
}

func drain(s *Server) []reactor.Action {
	var out []reactor.Action
	for {
		a, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, a)
	}
}

func TestEstablishedOrdering(t *testing.T) {
	d := &fakeDelegate{
		newClient: func(fd core.Fd, id reactor.ResourceID) []reactor.Action {
			return []reactor.Action{reactor.Send(id, []byte("delegate"))}
		},
	}
	s := newTestServer(t, d)
	fd := core.NextFd()
	s.Enqueue(fd, []byte("first"))
	s.Enqueue(fd, []byte("second"))
	other := core.NextFd()
	s.Enqueue(other, []byte("other"))

	s.HandleTransportEvent(20, transport.Established{Fd: fd})
	actions := drain(s)
	assert.Assert(t, cmp.Len(actions, 3))
	for i, want := range []string{"delegate", "first", "second"} {
		assert.Check(t, cmp.DeepEqual(reactor.Send(20, []byte(want)), actions[i]))
	}
	_, ok := s.outbox[fd]
	assert.Check(t, !ok)
	assert.Check(t, cmp.Len(s.outbox[other], 1))
}

func TestEstablishedNoDelegateActions(t *testing.T) {
	s := newTestServer(t, &fakeDelegate{})
	fd := core.NextFd()
	s.Enqueue(fd, []byte("queued"))
	s.HandleTransportEvent(21, transport.Established{Fd: fd})
	actions := drain(s)
	assert.Assert(t, cmp.Len(actions, 1))
	assert.Check(t, cmp.DeepEqual(reactor.Send(21, []byte("queued")), actions[0]))
}

func TestDataGoesToDelegate(t *testing.T) {
	d := &fakeDelegate{}
	s := newTestServer(t, d)
	s.HandleTransportEvent(22, transport.Data{Bytes: []byte("ECHO")})
	assert.Check(t, cmp.DeepEqual([][]byte{[]byte("ECHO")}, d.inputs))
	assert.Check(t, cmp.DeepEqual([]reactor.Action{reactor.Send(22, []byte("ECHO"))}, drain(s)))
}

func TestTerminated(t *testing.T) {
	d := &fakeDelegate{reap: []reactor.Action{reactor.Send(7, []byte("Failure: reset"))}}
	s := newTestServer(t, d)
	fd := core.NextFd()
	s.Enqueue(fd, []byte("never sent"))

	s.HandleTransportEvent(23, transport.Terminated{Fd: fd, Err: errors.New("reset")})
	want := []reactor.Action{reactor.Send(7, []byte("Failure: reset")), reactor.UnregisterTransport(23)}
	assert.Check(t, cmp.DeepEqual(want, drain(s)))
	assert.Check(t, cmp.Len(s.outbox, 0))
	assert.Check(t, cmp.DeepEqual([]core.Fd{fd}, d.terminated))

	// Handing the same transport back twice is harmless.
	s.HandoverTransport(23, nil)
	s.HandoverTransport(23, nil)
	assert.Check(t, cmp.Len(drain(s), 0))
}

func TestHandleError(t *testing.T) {
	s := newTestServer(t, &fakeDelegate{})

	s.HandleError(&reactor.TransportDisconnect{ID: 24, Err: transport.ErrClosed})
	s.HandleError(&reactor.PollError{Action: reactor.Send(25, nil), Err: reactor.ErrUnknownResource})
	assert.Check(t, cmp.Len(drain(s), 0))

	s.HandleError(&reactor.ListenerDisconnect{ID: 1, Err: net.ErrClosed})
	assert.Check(t, cmp.DeepEqual([]reactor.Action{reactor.UnregisterListener(1)}, drain(s)))
}

func TestHandoverListenerPanics(t *testing.T) {
	s := newTestServer(t, &fakeDelegate{})
	assert.Check(t, cmp.Panics(func() { s.HandoverListener(1, s.listener) }))
}

func TestListenerEvents(t *testing.T) {
	d := &fakeDelegate{signer: keys.GenerateNewSigningKeyPair()}
	s := newTestServer(t, d)

	s.HandleListenerEvent(1, transport.ListenerFailure{Err: errors.New("too many open files")})
	assert.Check(t, cmp.Len(drain(s), 0))

	c1, c2 := net.Pipe()
	defer c1.Close()
	s.HandleListenerEvent(1, transport.Accepted{Conn: c2})
	actions := drain(s)
	assert.Assert(t, cmp.Len(actions, 1))
	assert.Check(t, cmp.Equal(reactor.ActionRegisterTransport, actions[0].Kind))
	assert.Check(t, cmp.Equal(session.Inbound, actions[0].Transport.Direction()))
	actions[0].Transport.Close()

	d.acceptErr = errors.New("refused")
	c3, c4 := net.Pipe()
	defer c3.Close()
	s.HandleListenerEvent(1, transport.Accepted{Conn: c4})
	assert.Check(t, cmp.Len(drain(s), 0))
}
