//go:build !unix

package transport

import "syscall"

func controlListener(network, address string, c syscall.RawConn) error {
	return nil
}
