package core

import (
	"fmt"
	"strings"
	"testing"

	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"nsh.computer/nsh/keys"
)

func TestParseKnownHops(t *testing.T) {
	k := keys.GenerateNewSigningKeyPair()
	file := fmt.Sprintf("# relays\n\nexit 10.0.0.2:4242 %s\nhidden abcdefghijklmnop.onion:4242\t%s\n", k.Public, k.Public)
	hops, err := ParseKnownHops(strings.NewReader(file))
	assert.NilError(t, err)
	assert.Check(t, cmp.Len(hops, 2))

	exit, ok := hops.Lookup("exit")
	assert.Assert(t, ok)
	assert.Check(t, cmp.Equal("10.0.0.2:4242", exit.Address.String()))
	assert.Check(t, cmp.Equal(k.Public, exit.Identity))

	hidden, ok := hops.Lookup("hidden")
	assert.Assert(t, ok)
	assert.Check(t, hidden.Address.RequiresProxy())

	_, ok = hops.Lookup("missing")
	assert.Check(t, !ok)
}

func TestParseKnownHopsErrors(t *testing.T) {
	k := keys.GenerateNewSigningKeyPair()
	bad := []string{
		"exit 10.0.0.2:4242",
		"exit 10.0.0.2 " + k.Public.String(),
		"exit 10.0.0.2:4242 nsh-dh-v1-AAAA",
		fmt.Sprintf("exit 10.0.0.2:4242 %s extra", k.Public),
		fmt.Sprintf("a 10.0.0.2:1 %s\na 10.0.0.3:1 %s", k.Public, k.Public),
	}
	for _, in := range bad {
		_, err := ParseKnownHops(strings.NewReader(in))
		assert.Check(t, err != nil, in)
	}
}

func TestAuthorizedKeys(t *testing.T) {
	allowed := keys.GenerateNewSigningKeyPair()
	other := keys.GenerateNewSigningKeyPair()
	ak, err := ParseAuthorizedKeys(strings.NewReader("# operators\n" + allowed.Public.String() + "\n"))
	assert.NilError(t, err)
	assert.Check(t, ak.Allowed(allowed.Public))
	assert.Check(t, !ak.Allowed(other.Public))

	all, err := ParseAuthorizedKeys(strings.NewReader("*\n"))
	assert.NilError(t, err)
	assert.Check(t, all.Allowed(other.Public))

	_, err = ParseAuthorizedKeys(strings.NewReader("# operators\ngarbage\n"))
	assert.Check(t, cmp.ErrorContains(err, "authorized keys: line 2: "))
	_, err = ParseKnownHops(strings.NewReader("exit 10.0.0.2:4242 garbage\n"))
	assert.Check(t, cmp.ErrorContains(err, "known hops: line 1: "))
}
