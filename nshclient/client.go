// Package nshclient sends single commands to nsh nodes.
package nshclient

import (
	"context"

	"github.com/pkg/errors"

	"nsh.computer/nsh/command"
	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
	"nsh.computer/nsh/session"
)

// Exec opens a session to remote, which must present remoteID, sends cmd and
// returns the first reply. A forwarded command gets no reply, so for those
// Exec returns as soon as the command is written.
func Exec(ctx context.Context, remote core.NetAddr, remoteID keys.SigningPublicKey, signer *keys.SigningKeyPair, proxy session.ProxyConfig, cmd command.Command) ([]byte, error) {
	s, err := session.Connect(remote, remoteID, signer, proxy)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Establish(ctx); err != nil {
		return nil, errors.Wrapf(err, "connect to %s", remote)
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	if err := s.WriteMsg([]byte(cmd.String())); err != nil {
		return nil, errors.Wrap(err, "send command")
	}
	if cmd.Forward != nil {
		return nil, nil
	}
	reply, err := s.ReadMsg()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, errors.Wrap(err, "read reply")
	}
	out := make([]byte, len(reply))
	copy(out, reply)
	return out, nil
}
