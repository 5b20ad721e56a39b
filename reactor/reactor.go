// Package reactor runs the event loop of a node. A single goroutine owns the
// Handler; each registered resource gets an I/O goroutine that only posts
// events back to the loop. The Handler changes the world only through the
// Actions it queues.
package reactor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"nsh.computer/nsh/common"
	"nsh.computer/nsh/transport"
)

// DefaultTickInterval is used when Config.TickInterval is zero.
const DefaultTickInterval = common.DefaultTickInterval

// ErrUnknownResource is wrapped in a PollError when an action names a resource
// that is not registered.
var ErrUnknownResource = errors.New("unknown resource")

// Config configures a Reactor.
type Config struct {
	TickInterval time.Duration
	Log          *logrus.Entry
}

type listenerEntry struct {
	l      *transport.Listener
	cancel context.CancelFunc
}

type transportEntry struct {
	t      *transport.Transport
	cancel context.CancelFunc
}

type event struct {
	id ResourceID

	listenerEvent  transport.ListenerEvent
	listenerExit   bool
	listenerErr    error
	transportEvent transport.Event
	timer          bool
}

// Reactor drives a Handler.
type Reactor struct {
	handler Handler
	log     *logrus.Entry
	tick    time.Duration

	events chan event
	done   chan struct{}
	wg     sync.WaitGroup

	// Owned by the Run goroutine.
	nextID     ResourceID
	listeners  map[ResourceID]listenerEntry
	transports map[ResourceID]transportEntry
	ctx        context.Context
}

// New returns a Reactor for h.
func New(h Handler, config Config) *Reactor {
	tick := config.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	log := config.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reactor{
		handler:    h,
		log:        log.WithField("component", "reactor"),
		tick:       tick,
		events:     make(chan event),
		done:       make(chan struct{}),
		listeners:  make(map[ResourceID]listenerEntry),
		transports: make(map[ResourceID]transportEntry),
	}
}

// Run processes events until ctx is done, then closes every resource and
// waits for their goroutines.
func (r *Reactor) Run(ctx context.Context) error {
	r.ctx = ctx
	defer r.shutdown()

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.drain()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.handler.Tick(now)
		case ev := <-r.events:
			r.dispatch(ev)
		}
		r.drain()
	}
}

func (r *Reactor) shutdown() {
	close(r.done)
	ids := maps.Keys(r.listeners)
	slices.Sort(ids)
	for _, id := range ids {
		r.listeners[id].cancel()
		r.listeners[id].l.Close()
	}
	ids = maps.Keys(r.transports)
	slices.Sort(ids)
	for _, id := range ids {
		r.transports[id].cancel()
		r.transports[id].t.Close()
	}
	r.wg.Wait()
	r.log.Debugf("shut down %d listeners and %d transports", len(r.listeners), len(r.transports))
	maps.Clear(r.listeners)
	maps.Clear(r.transports)
}

// post hands an event to the loop. It gives up once the reactor stops.
func (r *Reactor) post(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

func (r *Reactor) dispatch(ev event) {
	switch {
	case ev.timer:
		r.handler.HandleTimer()
	case ev.listenerExit:
		entry, ok := r.listeners[ev.id]
		if !ok || ev.listenerErr == nil {
			return
		}
		r.handler.HandleError(&ListenerDisconnect{ID: ev.id, Listener: entry.l, Err: ev.listenerErr})
	case ev.listenerEvent != nil:
		if _, ok := r.listeners[ev.id]; !ok {
			if acc, ok := ev.listenerEvent.(transport.Accepted); ok {
				acc.Conn.Close()
			}
			return
		}
		r.handler.HandleListenerEvent(ev.id, ev.listenerEvent)
	case ev.transportEvent != nil:
		if _, ok := r.transports[ev.id]; !ok {
			r.log.Tracef("dropping %v for unregistered transport %s", ev.transportEvent, ev.id)
			return
		}
		r.handler.HandleTransportEvent(ev.id, ev.transportEvent)
	}
}

// drain applies queued actions until the handler has none left. Applying an
// action may call back into the handler, which may queue more.
func (r *Reactor) drain() {
	for {
		a, ok := r.handler.Next()
		if !ok {
			return
		}
		r.apply(a)
	}
}

func (r *Reactor) apply(a Action) {
	r.log.Tracef("applying %s", a)
	switch a.Kind {
	case ActionRegisterListener:
		r.registerListener(a.Listener)
	case ActionRegisterTransport:
		r.registerTransport(a.Transport)
	case ActionUnregisterListener:
		entry, ok := r.listeners[a.ID]
		if !ok {
			r.log.Debugf("listener %s is not registered", a.ID)
			return
		}
		delete(r.listeners, a.ID)
		entry.cancel()
		entry.l.Close()
		r.handler.HandoverListener(a.ID, entry.l)
	case ActionUnregisterTransport:
		entry, ok := r.transports[a.ID]
		if !ok {
			r.log.Debugf("transport %s is not registered", a.ID)
			return
		}
		delete(r.transports, a.ID)
		entry.cancel()
		entry.t.Close()
		r.handler.HandoverTransport(a.ID, entry.t)
	case ActionSend:
		entry, ok := r.transports[a.ID]
		if !ok {
			r.handler.HandleError(&PollError{Action: a, Err: errors.Wrapf(ErrUnknownResource, "transport %s", a.ID)})
			return
		}
		err := entry.t.Send(a.Payload)
		switch {
		case errors.Is(err, transport.ErrClosed):
			r.handler.HandleError(&TransportDisconnect{ID: a.ID, Transport: entry.t, Err: err})
		case err != nil:
			r.handler.HandleError(&PollError{Action: a, Err: err})
		}
	case ActionSetTimer:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			t := time.NewTimer(a.Delay)
			defer t.Stop()
			select {
			case <-t.C:
				r.post(event{timer: true})
			case <-r.done:
			}
		}()
	default:
		r.handler.HandleError(&PollError{Action: a, Err: errors.Errorf("unknown action kind %s", a.Kind)})
	}
}

func (r *Reactor) register() ResourceID {
	r.nextID++
	return r.nextID
}

func (r *Reactor) registerListener(l *transport.Listener) {
	id := r.register()
	ctx, cancel := context.WithCancel(r.ctx)
	r.listeners[id] = listenerEntry{l: l, cancel: cancel}
	r.handler.HandleRegistered(id, Listener, l.String())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := l.Run(ctx, func(ev transport.ListenerEvent) {
			if !r.post(event{id: id, listenerEvent: ev}) {
				if acc, ok := ev.(transport.Accepted); ok {
					acc.Conn.Close()
				}
			}
		})
		r.post(event{id: id, listenerExit: true, listenerErr: err})
	}()
}

func (r *Reactor) registerTransport(t *transport.Transport) {
	id := r.register()
	ctx, cancel := context.WithCancel(r.ctx)
	r.transports[id] = transportEntry{t: t, cancel: cancel}
	r.handler.HandleRegistered(id, Transport, t.String())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t.Run(ctx, func(ev transport.Event) {
			r.post(event{id: id, transportEvent: ev})
		})
	}()
}
