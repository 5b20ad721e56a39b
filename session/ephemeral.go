package session

import (
	"nsh.computer/nsh/pkg/must"
)

// ephemeralSource is the randomness of one handshake. It remembers every
// buffer it fills, which includes the ephemeral private key, so wipe can clear
// them once the handshake is over.
type ephemeralSource struct {
	filled [][]byte
}

// Read implements io.Reader. It never fails short.
func (e *ephemeralSource) Read(p []byte) (int, error) {
	must.ReadRandom(p)
	e.filled = append(e.filled, p)
	return len(p), nil
}

func (e *ephemeralSource) wipe() {
	for _, b := range e.filled {
		zero(b)
	}
	e.filled = nil
}
