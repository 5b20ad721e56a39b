package session

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"nsh.computer/nsh/core"
)

// connDialer is implemented by the SOCKS5 dialer from x/net/proxy. It runs the
// SOCKS5 negotiation over a connection that is already open.
type connDialer interface {
	DialWithConn(ctx context.Context, c net.Conn, network, address string) (net.Addr, error)
}

// negotiateTunnel asks the SOCKS5 proxy at the other end of conn to connect to
// dest. Host names, onion addresses included, are resolved by the proxy.
func negotiateTunnel(ctx context.Context, conn net.Conn, dest core.NetAddr) error {
	d, err := proxy.SOCKS5("tcp", conn.RemoteAddr().String(), nil, proxy.Direct)
	if err != nil {
		return err
	}
	cd, ok := d.(connDialer)
	if !ok {
		return errors.New("socks5 dialer cannot negotiate over an open connection")
	}
	_, err = cd.DialWithConn(ctx, conn, "tcp", dest.String())
	return err
}
