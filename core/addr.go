// Package core contains nsh-specific library functions designed to be used by
// the nsh suite of tools.
package core

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// HostKind classifies the host part of a NetAddr.
type HostKind int

// Host kinds. Onion hosts can only be reached through a SOCKS5 proxy.
const (
	HostIP HostKind = iota
	HostDNS
	HostOnion
)

func (k HostKind) String() string {
	switch k {
	case HostIP:
		return "ip"
	case HostDNS:
		return "dns"
	case HostOnion:
		return "onion"
	default:
		return fmt.Sprintf("HostKind(%d)", int(k))
	}
}

// NetAddr is a destination: a host, which may still need to be resolved, and a
// port.
type NetAddr struct {
	Host string
	Kind HostKind
	Port uint16
}

// String returns an address of the form "host:port".
func (a NetAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IsZero is true for the zero value.
func (a NetAddr) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// RequiresProxy is true when the host cannot be reached without a proxy.
func (a NetAddr) RequiresProxy() bool {
	return a.Kind == HostOnion
}

// ConnectionAddr returns the address a raw socket should connect to in order
// to reach a. Hosts that require a proxy are reached through proxy; IP and DNS
// hosts are dialed directly.
func (a NetAddr) ConnectionAddr(proxy NetAddr) NetAddr {
	if a.RequiresProxy() {
		return proxy
	}
	return a
}

// ParseNetAddr parses an address of the form host:port. IPv6 literals must be
// bracketed.
func ParseNetAddr(in string) (NetAddr, error) {
	host, portString, err := net.SplitHostPort(in)
	if err != nil {
		return NetAddr{}, err
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return NetAddr{}, errors.Errorf("invalid port %q in %q", portString, in)
	}
	if port == 0 {
		return NetAddr{}, errors.Errorf("port must be non-zero in %q", in)
	}
	out := NetAddr{Host: host, Port: uint16(port)}
	switch {
	case net.ParseIP(host) != nil:
		out.Kind = HostIP
	case strings.HasSuffix(strings.ToLower(host), ".onion"):
		out.Kind = HostOnion
	default:
		if !validHostname(host) {
			return NetAddr{}, errors.Errorf("invalid hostname %q", host)
		}
		out.Kind = HostDNS
	}
	return out, nil
}

func validHostname(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}
