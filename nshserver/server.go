// Package nshserver implements the nsh relay node: a reactor Handler that
// routes lifecycle events to a Delegate, and the Processor delegate that
// executes and forwards commands.
package nshserver

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"nsh.computer/nsh/core"
	"nsh.computer/nsh/reactor"
	"nsh.computer/nsh/transport"
)

// Server is a reactor.Handler. It owns the action queue and the outbox of
// messages waiting for a descriptor to complete its handshake.
type Server struct {
	delegate Delegate
	listener *transport.Listener
	log      *logrus.Entry

	actions []reactor.Action
	outbox  map[core.Fd][][]byte
}

var _ reactor.Handler = &Server{}

// New binds listen and returns a Server whose first action registers the
// listener.
func New(listen string, delegate Delegate, log *logrus.Entry) (*Server, error) {
	l, err := transport.Listen(listen)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		delegate: delegate,
		listener: l,
		log:      log.WithField("component", "server"),
		outbox:   make(map[core.Fd][][]byte),
	}
	s.push(reactor.RegisterListener(l))
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Enqueue holds payload until the transport with descriptor fd is
// established. It is then sent after whatever the delegate sends first.
func (s *Server) Enqueue(fd core.Fd, payload []byte) {
	s.log.Debugf("queueing %d bytes for %s", len(payload), fd)
	s.outbox[fd] = append(s.outbox[fd], payload)
}

func (s *Server) push(actions ...reactor.Action) {
	s.actions = append(s.actions, actions...)
}

// Next implements reactor.Handler.
func (s *Server) Next() (reactor.Action, bool) {
	if len(s.actions) == 0 {
		return reactor.Action{}, false
	}
	a := s.actions[0]
	s.actions[0] = reactor.Action{}
	s.actions = s.actions[1:]
	return a, true
}

// Tick implements reactor.Handler.
func (s *Server) Tick(now time.Time) {
	s.log.Tracef("reactor ticks at %s", now)
}

// HandleTimer implements reactor.Handler.
func (s *Server) HandleTimer() {
	s.log.Trace("reactor receives a timer event")
}

// HandleListenerEvent implements reactor.Handler.
func (s *Server) HandleListenerEvent(id reactor.ResourceID, ev transport.ListenerEvent) {
	s.log.Tracef("listener event on %s", id)
	switch ev := ev.(type) {
	case transport.Accepted:
		s.log.Infof("incoming connection from %s on %s", ev.Conn.RemoteAddr(), ev.Conn.LocalAddr())
		sess, err := s.delegate.Accept(ev.Conn)
		if err != nil {
			s.log.Infof("error accepting incoming connection: %s", err)
			ev.Conn.Close()
			return
		}
		t, err := transport.Accept(sess)
		if err != nil {
			s.log.Infof("error accepting incoming connection: %s", err)
			sess.Close()
			return
		}
		s.log.Info("connection accepted, registering transport with reactor")
		s.push(reactor.RegisterTransport(t))
	case transport.ListenerFailure:
		s.log.Errorf("error on listener %s: %s", id, ev.Err)
	}
}

// HandleTransportEvent implements reactor.Handler.
func (s *Server) HandleTransportEvent(id reactor.ResourceID, ev transport.Event) {
	s.log.Tracef("I/O on %s", id)
	switch ev := ev.(type) {
	case transport.Established:
		queue := s.outbox[ev.Fd]
		delete(s.outbox, ev.Fd)
		s.log.Debugf("connection with remote peer %s@%s established; processing %d items from outbox", ev.Identity, id, len(queue))
		s.push(s.delegate.NewClient(ev.Fd, id, ev.Identity)...)
		for _, msg := range queue {
			s.push(reactor.Send(id, msg))
		}
	case transport.Data:
		s.log.Tracef("incoming data %q", ev.Bytes)
		s.push(s.delegate.Input(id, ev.Bytes)...)
	case transport.Terminated:
		s.log.Warnf("connection with %s is terminated: %s", id, ev.Err)
		if n := len(s.outbox[ev.Fd]); n > 0 {
			s.log.Debugf("discarding %d queued messages for %s", n, ev.Fd)
		}
		delete(s.outbox, ev.Fd)
		if r, ok := s.delegate.(Reaper); ok {
			s.push(r.Terminated(ev.Fd, ev.Err)...)
		}
		s.push(reactor.UnregisterTransport(id))
	}
}

// HandleRegistered implements reactor.Handler.
func (s *Server) HandleRegistered(id reactor.ResourceID, ty reactor.ResourceType, name string) {
	s.log.Debugf("%s %s was registered in the reactor with id %s", ty, name, id)
}

// HandleError implements reactor.Handler.
func (s *Server) HandleError(err error) {
	switch err := err.(type) {
	case *reactor.TransportDisconnect:
		s.log.Warnf("remote peer %s with id=%s disconnected", err.Transport, err.ID)
	case *reactor.ListenerDisconnect:
		s.log.Errorf("error: %s", err)
		s.push(reactor.UnregisterListener(err.ID))
	default:
		s.log.Errorf("error: %s", err)
	}
}

// HandoverListener implements reactor.Handler. The node cannot serve without
// its listener, so losing it panics.
func (s *Server) HandoverListener(id reactor.ResourceID, l *transport.Listener) {
	s.log.Errorf("disconnected listener socket %s", id)
	s.log.Panicf("disconnected listener socket %s", id)
}

// HandoverTransport implements reactor.Handler.
func (s *Server) HandoverTransport(id reactor.ResourceID, t *transport.Transport) {
	s.log.Warnf("remote peer %s with id=%s disconnected", t, id)
}
