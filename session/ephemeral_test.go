package session

import (
	"bytes"
	"testing"

	"gotest.tools/assert"
	"gotest.tools/assert/cmp"
)

func TestEphemeralSourceWipe(t *testing.T) {
	rng := &ephemeralSource{}
	a, b := make([]byte, 32), make([]byte, 32)
	n, err := rng.Read(a)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(32, n))
	_, err = rng.Read(b)
	assert.NilError(t, err)
	assert.Check(t, !bytes.Equal(a, b))

	rng.wipe()
	assert.Check(t, cmp.DeepEqual(make([]byte, 32), a))
	assert.Check(t, cmp.DeepEqual(make([]byte, 32), b))
	assert.Check(t, cmp.Len(rng.filled, 0))
}
