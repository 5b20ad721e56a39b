// Package session implements the nsh secure session: an encrypted,
// authenticated, message-oriented duplex over TCP, optionally tunneled through
// a SOCKS5 proxy.
//
// Layers, bottom up: the raw socket, the SOCKS5 negotiation (only when
// tunneling), the Noise XK handshake, and finally length-prefixed encrypted
// messages. The initiator always knows the identity of the responder in
// advance. The responder learns the initiator's identity from the handshake
// and leaves any authorization decision to its caller.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
	"github.com/pkg/errors"

	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
)

// ProxyConfig describes how outbound sessions reach their destination.
type ProxyConfig struct {
	// Address of the SOCKS5 proxy. The zero value means no proxy.
	Address core.NetAddr

	// Force tunnels every outbound session through the proxy, not only those
	// whose destination requires it.
	Force bool

	// Timeout bounds the outbound dial: connect, tunnel and handshake. Zero
	// means no timeout.
	Timeout time.Duration
}

// Session is one secure session. Establish, ReadMsg and WriteMsg may each be
// called from their own goroutine; Close may be called from any goroutine.
type Session struct {
	fd        core.Fd
	direction Direction

	// Outbound only.
	remote   core.NetAddr
	target   core.NetAddr
	tunnel   bool
	timeout  time.Duration
	remoteID keys.SigningPublicKey

	signer *keys.SigningKeyPair
	static *keys.X25519KeyPair

	m            sync.Mutex
	state        State
	establishing bool
	conn         net.Conn
	peer         keys.SigningPublicKey

	readM   sync.Mutex
	recv    *noise.CipherState
	readBuf []byte

	writeM   sync.Mutex
	send     *noise.CipherState
	writeBuf []byte
}

// Connect prepares an outbound session to remote, which must present the
// signing identity remoteID. No network I/O happens here: the returned session
// is Dialing, and the connection is opened by Establish. Errors describe a
// destination that can never be dialed with the given proxy settings.
func Connect(remote core.NetAddr, remoteID keys.SigningPublicKey, signer *keys.SigningKeyPair, proxy ProxyConfig) (*Session, error) {
	if remoteID.IsZero() {
		return nil, ErrNoRemoteIdentity
	}
	if remote.IsZero() {
		return nil, errors.New("empty destination address")
	}
	hasProxy := !proxy.Address.IsZero()
	if (proxy.Force || remote.RequiresProxy()) && !hasProxy {
		return nil, errors.Wrapf(ErrNoProxy, "dial %s", remote)
	}
	if _, err := remoteID.X25519(); err != nil {
		return nil, errors.Wrap(err, "remote identity")
	}
	s := newSession(Outbound, signer)
	s.state = StateDialing
	s.remote = remote
	s.remoteID = remoteID
	s.timeout = proxy.Timeout
	if proxy.Force {
		s.target = proxy.Address
		s.tunnel = true
	} else {
		s.target = remote.ConnectionAddr(proxy.Address)
		s.tunnel = remote.RequiresProxy()
	}
	return s, nil
}

// Accept wraps an accepted connection as an inbound session. The remote
// identity is not known until Establish completes.
func Accept(conn net.Conn, signer *keys.SigningKeyPair) *Session {
	s := newSession(Inbound, signer)
	s.state = StateAccepting
	s.conn = conn
	return s
}

func newSession(direction Direction, signer *keys.SigningKeyPair) *Session {
	return &Session{
		fd:        core.NextFd(),
		direction: direction,
		signer:    signer,
		static:    signer.X25519(),
	}
}

// Fd returns the pre-identity descriptor of the session.
func (s *Session) Fd() core.Fd {
	return s.fd
}

// Direction returns the direction fixed at creation.
func (s *Session) Direction() Direction {
	return s.direction
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.m.Lock()
	defer s.m.Unlock()
	return s.state
}

// RemoteIdentity returns the authenticated signing identity of the peer. ok is
// false until the session is Established.
func (s *Session) RemoteIdentity() (id keys.SigningPublicKey, ok bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.state != StateEstablished {
		return id, false
	}
	return s.peer, true
}

// RemoteAddr returns the destination of an outbound session, or the peer
// address of an inbound one.
func (s *Session) RemoteAddr() string {
	if s.direction == Outbound {
		return s.remote.String()
	}
	s.m.Lock()
	conn := s.conn
	s.m.Unlock()
	if conn != nil && conn.RemoteAddr() != nil {
		return conn.RemoteAddr().String()
	}
	return ""
}

func (s *Session) String() string {
	return fmt.Sprintf("%s/%s/%s", s.fd, s.direction, s.RemoteAddr())
}

func (s *Session) setState(state State) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.state == StateTerminated {
		return ErrTerminated
	}
	s.state = state
	return nil
}

// Establish runs the session to Established: for outbound sessions it opens
// the raw connection and negotiates the proxy tunnel first. The outbound dial
// is bounded by the configured timeout. No step is retried.
func (s *Session) Establish(ctx context.Context) error {
	s.m.Lock()
	state := s.state
	if state == StateTerminated {
		s.m.Unlock()
		return ErrTerminated
	}
	if s.establishing || (state != StateDialing && state != StateAccepting) {
		s.m.Unlock()
		return ErrWrongState
	}
	s.establishing = true
	s.m.Unlock()
	// The static key is only needed for the handshake.
	defer s.static.Zero()

	if s.direction == Outbound && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.direction == Outbound {
		if err := s.dial(ctx); err != nil {
			return err
		}
	}

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if s.tunnel {
		if err := negotiateTunnel(ctx, s.conn, s.remote); err != nil {
			return s.fail(errors.Wrapf(err, "proxy tunnel to %s via %s", s.remote, s.target))
		}
	}

	if err := s.setState(StateHandshaking); err != nil {
		return err
	}
	var err error
	if s.direction == Outbound {
		err = s.initiate(s.signer.Public[:])
	} else {
		err = s.respond()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return s.fail(errors.Wrap(err, "handshake"))
	}
	if !stop() {
		return s.fail(errors.Wrap(ctx.Err(), "handshake"))
	}
	return nil
}

func (s *Session) dial(ctx context.Context) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", s.target.String())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return s.fail(errors.Wrapf(err, "connect to %s", s.target))
	}
	s.m.Lock()
	if s.state == StateTerminated {
		s.m.Unlock()
		conn.Close()
		return ErrTerminated
	}
	s.conn = conn
	s.m.Unlock()
	return nil
}

func (s *Session) fail(err error) error {
	s.Close()
	return err
}

func (s *Session) noiseConfig(rng *ephemeralSource) noise.Config {
	return noise.Config{
		Random:      rng,
		CipherSuite: noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256),
		Pattern:     noise.HandshakeXK,
		Initiator:   s.direction == Outbound,
		Prologue:    []byte(Prologue),
		StaticKeypair: noise.DHKey{
			Public:  s.static.Public[:],
			Private: s.static.Private[:],
		},
	}
}

// initiate runs the initiator side of XK:
//
//	-> e, es
//	<- e, ee
//	-> s, se (payload: signing identity)
func (s *Session) initiate(identity []byte) error {
	rng := &ephemeralSource{}
	defer rng.wipe()
	config := s.noiseConfig(rng)
	rs, err := s.remoteID.X25519()
	if err != nil {
		return err
	}
	config.PeerStatic = rs[:]
	hs, err := noise.NewHandshakeState(config)
	if err != nil {
		return err
	}

	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return err
	}
	if err := writeFrame(s.conn, msg); err != nil {
		return err
	}
	in, err := readFrame(s.conn, nil)
	if err != nil {
		return err
	}
	if _, _, _, err := hs.ReadMessage(nil, in); err != nil {
		return err
	}
	msg, send, recv, err := hs.WriteMessage(nil, identity)
	if err != nil {
		return err
	}
	if err := writeFrame(s.conn, msg); err != nil {
		return err
	}
	return s.established(send, recv, s.remoteID)
}

// respond runs the responder side of XK and recovers the initiator identity.
func (s *Session) respond() error {
	rng := &ephemeralSource{}
	defer rng.wipe()
	hs, err := noise.NewHandshakeState(s.noiseConfig(rng))
	if err != nil {
		return err
	}

	in, err := readFrame(s.conn, nil)
	if err != nil {
		return err
	}
	if _, _, _, err := hs.ReadMessage(nil, in); err != nil {
		return err
	}
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return err
	}
	if err := writeFrame(s.conn, msg); err != nil {
		return err
	}
	in, err = readFrame(s.conn, nil)
	if err != nil {
		return err
	}
	payload, recv, send, err := hs.ReadMessage(nil, in)
	if err != nil {
		return err
	}
	if len(payload) != identityPayloadLen {
		return ErrIdentityMismatch
	}
	var peer keys.SigningPublicKey
	copy(peer[:], payload)
	projected, err := peer.X25519()
	if err != nil {
		return ErrIdentityMismatch
	}
	if string(projected[:]) != string(hs.PeerStatic()) {
		return ErrIdentityMismatch
	}
	return s.established(send, recv, peer)
}

func (s *Session) established(send, recv *noise.CipherState, peer keys.SigningPublicKey) error {
	s.writeM.Lock()
	s.send = send
	s.writeM.Unlock()
	s.readM.Lock()
	s.recv = recv
	s.readM.Unlock()

	s.m.Lock()
	defer s.m.Unlock()
	if s.state == StateTerminated {
		return ErrTerminated
	}
	s.peer = peer
	s.state = StateEstablished
	return nil
}

// ReadMsg blocks for the next message and decrypts it into a buffer owned by
// the session. The returned slice is only valid until the next ReadMsg.
func (s *Session) ReadMsg() ([]byte, error) {
	s.readM.Lock()
	defer s.readM.Unlock()
	if s.recv == nil {
		if s.State() == StateTerminated {
			return nil, ErrTerminated
		}
		return nil, ErrNotEstablished
	}
	frame, err := readFrame(s.conn, s.readBuf[:0])
	if err != nil {
		return nil, err
	}
	s.readBuf = frame
	return s.recv.Decrypt(frame[:0], nil, frame)
}

// WriteMsg encrypts b and writes it as one message.
func (s *Session) WriteMsg(b []byte) error {
	if len(b) > MaxPlaintextSize {
		return ErrMessageTooLarge
	}
	s.writeM.Lock()
	defer s.writeM.Unlock()
	if s.send == nil {
		if s.State() == StateTerminated {
			return ErrTerminated
		}
		return ErrNotEstablished
	}
	if cap(s.writeBuf) < LengthLen {
		s.writeBuf = make([]byte, LengthLen, LengthLen+len(b)+TagLen)
	}
	out, err := s.send.Encrypt(s.writeBuf[:LengthLen], nil, b)
	if err != nil {
		return err
	}
	s.writeBuf = out
	putLength(out, len(out)-LengthLen)
	_, err = s.conn.Write(out)
	return err
}

// SetDeadline sets the read and write deadline of the underlying connection.
// It does nothing before the connection exists.
func (s *Session) SetDeadline(t time.Time) error {
	s.m.Lock()
	conn := s.conn
	s.m.Unlock()
	if conn == nil {
		return nil
	}
	return conn.SetDeadline(t)
}

// Close terminates the session, closes the socket and drops all secrets. It is
// safe to call more than once.
func (s *Session) Close() error {
	s.m.Lock()
	if s.state == StateTerminated {
		s.m.Unlock()
		return nil
	}
	s.state = StateTerminated
	conn := s.conn
	establishing := s.establishing
	s.m.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	// Closing the socket unblocks any reader or writer holding these locks.
	s.readM.Lock()
	s.recv = nil
	zero(s.readBuf[:cap(s.readBuf)])
	s.readM.Unlock()
	s.writeM.Lock()
	s.send = nil
	zero(s.writeBuf[:cap(s.writeBuf)])
	s.writeM.Unlock()
	if !establishing {
		s.static.Zero()
	}
	return err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
