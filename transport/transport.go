package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
	"nsh.computer/nsh/session"
)

// CloseTimeout bounds how long Close keeps trying to flush queued messages.
const CloseTimeout = time.Second

// Transport owns exactly one secure session. Before registration it is known
// by its pre-identity descriptor, Fd.
type Transport struct {
	s *session.Session

	// closed is set by Close. No event is emitted once it is set.
	closed atomic.Bool

	m        sync.Mutex
	outbox   [][]byte
	writing  bool
	writeErr error
	wake     chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// WithSession wraps s. dir must be the direction s was created with.
func WithSession(s *session.Session, dir session.Direction) (*Transport, error) {
	if s.Direction() != dir {
		return nil, errors.Wrapf(ErrDirectionMismatch, "%s session as %s transport", s.Direction(), dir)
	}
	if s.State() == session.StateTerminated {
		return nil, session.ErrTerminated
	}
	return &Transport{
		s:    s,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}, nil
}

// Accept wraps an inbound session.
func Accept(s *session.Session) (*Transport, error) {
	return WithSession(s, session.Inbound)
}

// Fd returns the pre-identity descriptor.
func (t *Transport) Fd() core.Fd {
	return t.s.Fd()
}

// Direction returns the direction of the underlying session.
func (t *Transport) Direction() session.Direction {
	return t.s.Direction()
}

// RemoteIdentity returns the peer identity once established.
func (t *Transport) RemoteIdentity() (keys.SigningPublicKey, bool) {
	return t.s.RemoteIdentity()
}

func (t *Transport) String() string {
	return t.s.String()
}

// Send queues b for delivery. It never blocks: messages sent before the
// session is established are held and flushed in order once it is.
func (t *Transport) Send(b []byte) error {
	if len(b) > session.MaxPlaintextSize {
		return session.ErrMessageTooLarge
	}
	if t.closed.Load() || t.isDone() {
		return ErrClosed
	}
	t.m.Lock()
	t.outbox = append(t.outbox, b)
	t.m.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the transport. Messages already queued are still flushed, for
// at most CloseTimeout, before the session is torn down. Run returns shortly
// after without emitting further events. Close is safe to call more than
// once.
func (t *Transport) Close() error {
	t.closed.Store(true)
	t.doneOnce.Do(func() { close(t.done) })
	t.m.Lock()
	writing := t.writing
	t.m.Unlock()
	if writing {
		// The writer closes the session once the outbox is flushed.
		return t.s.SetDeadline(time.Now().Add(CloseTimeout))
	}
	return t.s.Close()
}

// shutdown tears the session down at once, dropping anything queued.
func (t *Transport) shutdown() {
	t.doneOnce.Do(func() { close(t.done) })
	t.s.Close()
}

func (t *Transport) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Transport) emit(sink func(Event), ev Event) {
	if t.closed.Load() {
		return
	}
	sink(ev)
}

// Run drives the session until it terminates or ctx is done. sink is called
// from the calling goroutine only, so events reach it in order.
func (t *Transport) Run(ctx context.Context, sink func(Event)) {
	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	if err := t.s.Establish(ctx); err != nil {
		t.shutdown()
		t.emit(sink, Terminated{Fd: t.Fd(), Err: err})
		return
	}

	// The writer must own the session before anyone hears of it, so a Close
	// that follows Established always flushes.
	t.m.Lock()
	t.writing = true
	t.m.Unlock()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.writeLoop()
	}()
	defer wg.Wait()

	id, _ := t.s.RemoteIdentity()
	t.emit(sink, Established{Fd: t.Fd(), Identity: id})

	for {
		msg, err := t.s.ReadMsg()
		if err != nil {
			t.m.Lock()
			if t.writeErr != nil {
				err = t.writeErr
			}
			t.m.Unlock()
			if !t.closed.Load() {
				t.shutdown()
			}
			t.emit(sink, Terminated{Fd: t.Fd(), Err: err})
			return
		}
		b := make([]byte, len(msg))
		copy(b, msg)
		t.emit(sink, Data{Bytes: b})
	}
}

// writeLoop flushes the outbox until the transport is done, then closes the
// session. A write error closes the session at once; the read loop reports
// it as Terminated.
func (t *Transport) writeLoop() {
	defer t.s.Close()
	for {
		t.m.Lock()
		pending := t.outbox
		t.outbox = nil
		t.m.Unlock()
		for _, b := range pending {
			if err := t.s.WriteMsg(b); err != nil {
				t.m.Lock()
				t.writeErr = errors.Wrap(err, "write")
				t.m.Unlock()
				t.shutdown()
				return
			}
		}
		select {
		case <-t.wake:
		case <-t.done:
			t.m.Lock()
			empty := len(t.outbox) == 0
			t.m.Unlock()
			if empty {
				return
			}
		}
	}
}
