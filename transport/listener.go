package transport

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Listener accepts TCP connections for a reactor.
type Listener struct {
	l      net.Listener
	closed atomic.Bool
}

// Listen binds addr with SO_REUSEADDR set where the platform supports it.
func Listen(addr string) (*Listener, error) {
	lc := net.ListenConfig{Control: controlListener}
	l, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	return &Listener{l: l}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.l.Addr()
}

func (l *Listener) String() string {
	return "listener/" + l.l.Addr().String()
}

// Close stops the listener. Run then returns nil.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.l.Close()
}

// Run accepts connections until the listener is closed or ctx is done. Accept
// errors the listener survives are reported as ListenerFailure. Run returns a
// non-nil error only when the socket goes away without Close being called.
func (l *Listener) Run(ctx context.Context, sink func(ListenerEvent)) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := l.l.Accept()
		if err == nil {
			delay = 0
			if l.closed.Load() {
				conn.Close()
				return nil
			}
			sink(Accepted{Conn: conn})
			continue
		}
		if l.closed.Load() {
			return nil
		}
		if errors.Is(err, net.ErrClosed) {
			return errors.Wrap(err, "listener socket closed")
		}
		sink(ListenerFailure{Err: err})

		// Back off on repeated failures, such as running out of descriptors.
		if delay == 0 {
			delay = 5 * time.Millisecond
		} else if delay *= 2; delay > time.Second {
			delay = time.Second
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}
