package core

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"nsh.computer/nsh/keys"
)

// AuthorizedKeys is a list of signing identities that may open sessions to a
// node. Authorization happens after the handshake, once the peer identity is
// known.
type AuthorizedKeys struct {
	Keys                 []keys.SigningPublicKey
	InsecureAllowAllKeys bool
}

// ParseAuthorizedKeys parses a list of signing public keys read from a reader.
// Blank lines and lines starting with '#' are ignored, and a line containing
// only "*" allows every key.
func ParseAuthorizedKeys(r io.Reader) (*AuthorizedKeys, error) {
	authorized := &AuthorizedKeys{}
	s := bufio.NewScanner(r)
	lineNum := 0
	for s.Scan() {
		lineNum++
		line := strings.TrimSpace(s.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if line == "*" {
			authorized.InsecureAllowAllKeys = true
			continue
		}
		k, err := keys.ParseSigningPublicKey(line)
		if err != nil {
			return nil, errors.Wrapf(err, "authorized keys: line %d", lineNum)
		}
		authorized.Keys = append(authorized.Keys, *k)
	}
	return authorized, s.Err()
}

// ParseAuthorizedKeysFile opens the file at path, and parses a list of signing
// public keys.
func ParseAuthorizedKeysFile(path string) (*AuthorizedKeys, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ParseAuthorizedKeys(r)
}

// Allowed returns true if the public key is in the authorized keys file.
func (akeys *AuthorizedKeys) Allowed(pk keys.SigningPublicKey) bool {
	if akeys.InsecureAllowAllKeys {
		return true
	}
	return slices.Contains(akeys.Keys, pk)
}
