// Package command defines the small command language spoken over nsh sessions.
//
// A command is one UTF-8 message:
//
//	ECHO
//	FORWARD <hop> <local-command>
//
// where <hop> is either <nsh-sign-key>@<host:port> or the alias of a known hop.
package command

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
)

// ErrInvalidCommand is wrapped by every error returned from Parse.
var ErrInvalidCommand = errors.New("invalid command")

// Keywords.
const (
	KeywordEcho    = "ECHO"
	KeywordForward = "FORWARD"
)

// LocalCommand is a command executed by the node that receives it.
type LocalCommand int

// Local commands.
const (
	// Echo runs the shell built-in echo with no arguments.
	Echo LocalCommand = iota + 1
)

func (c LocalCommand) String() string {
	switch c {
	case Echo:
		return KeywordEcho
	default:
		return fmt.Sprintf("LocalCommand(%d)", int(c))
	}
}

// ParseLocal parses a single local command keyword.
func ParseLocal(s string) (LocalCommand, error) {
	switch s {
	case KeywordEcho:
		return Echo, nil
	default:
		return 0, errors.Wrapf(ErrInvalidCommand, "unknown local command %q", s)
	}
}

// Hop is a remote node: where to reach it and the identity it must present.
type Hop struct {
	Addr core.NetAddr
	ID   keys.SigningPublicKey
}

// String encodes h as <id>@<host:port>.
func (h Hop) String() string {
	return h.ID.String() + "@" + h.Addr.String()
}

// ParseHop parses the output of Hop.String.
func ParseHop(s string) (Hop, error) {
	id, addr, ok := strings.Cut(s, "@")
	if !ok {
		return Hop{}, errors.Wrapf(ErrInvalidCommand, "hop %q is not of the form <key>@<host:port>", s)
	}
	pk, err := keys.ParseSigningPublicKey(id)
	if err != nil {
		return Hop{}, errors.Wrapf(ErrInvalidCommand, "hop identity: %v", err)
	}
	na, err := core.ParseNetAddr(addr)
	if err != nil {
		return Hop{}, errors.Wrapf(ErrInvalidCommand, "hop address: %v", err)
	}
	return Hop{Addr: na, ID: *pk}, nil
}

// HopResolver resolves hop aliases.
type HopResolver interface {
	Lookup(alias string) (core.KnownHop, bool)
}

// Command is a parsed message. Exactly one of Local and Forward is set.
type Command struct {
	Local   LocalCommand
	Forward *Forward
}

// Forward asks the receiving node to deliver Command to Hop.
type Forward struct {
	Hop     Hop
	Command LocalCommand
}

// Local wraps a LocalCommand as a Command.
func Local(c LocalCommand) Command {
	return Command{Local: c}
}

// NewForward builds a forward Command.
func NewForward(hop Hop, c LocalCommand) Command {
	return Command{Forward: &Forward{Hop: hop, Command: c}}
}

// String encodes c in wire form. Forwards are always written with a literal
// hop, so the result parses without a resolver.
func (c Command) String() string {
	if c.Forward != nil {
		return fmt.Sprintf("%s %s %s", KeywordForward, c.Forward.Hop, c.Forward.Command)
	}
	return c.Local.String()
}

// Parse parses one command. Surrounding whitespace, including a trailing
// newline, is ignored. resolver may be nil, in which case only literal hops are
// accepted.
func Parse(text string, resolver HopResolver) (Command, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}, errors.Wrap(ErrInvalidCommand, "empty")
	}
	switch fields[0] {
	case KeywordEcho:
		if len(fields) != 1 {
			return Command{}, errors.Wrapf(ErrInvalidCommand, "%s takes no arguments", KeywordEcho)
		}
		return Local(Echo), nil
	case KeywordForward:
		if len(fields) != 3 {
			return Command{}, errors.Wrapf(ErrInvalidCommand, "usage: %s <hop> <command>", KeywordForward)
		}
		hop, err := ResolveHop(fields[1], resolver)
		if err != nil {
			return Command{}, err
		}
		local, err := ParseLocal(fields[2])
		if err != nil {
			return Command{}, err
		}
		return NewForward(hop, local), nil
	default:
		return Command{}, errors.Wrapf(ErrInvalidCommand, "unknown keyword %q", fields[0])
	}
}

// ResolveHop parses a literal hop or looks up an alias in resolver.
func ResolveHop(s string, resolver HopResolver) (Hop, error) {
	if strings.Contains(s, "@") {
		return ParseHop(s)
	}
	if resolver != nil {
		if kh, ok := resolver.Lookup(s); ok {
			return Hop{Addr: kh.Address, ID: kh.Identity}, nil
		}
	}
	return Hop{}, errors.Wrapf(ErrInvalidCommand, "unknown hop %q", s)
}
