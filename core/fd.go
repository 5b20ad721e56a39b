package core

import (
	"strconv"
	"sync/atomic"
)

// Fd is the pre-identity descriptor of a connection. Every connection gets one
// the moment it is created, before it is registered anywhere, and keeps it for
// its whole lifetime. Unlike an OS file descriptor an Fd is never reused, so
// state keyed by it cannot be confused with a later connection.
type Fd uint64

var lastFd atomic.Uint64

// NextFd allocates a fresh descriptor. It is safe for concurrent use.
func NextFd() Fd {
	return Fd(lastFd.Add(1))
}

func (fd Fd) String() string {
	return "fd" + strconv.FormatUint(uint64(fd), 10)
}
