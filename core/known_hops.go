package core

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"

	"nsh.computer/nsh/keys"
)

// KnownHop is one entry of a known_hops file: a name for a remote node, where
// to reach it, and the signing identity it must present.
type KnownHop struct {
	Alias    string
	Address  NetAddr
	Identity keys.SigningPublicKey
}

// KnownHops maps aliases to hops.
type KnownHops map[string]KnownHop

// ParseKnownHops parses lines of the form
//
//	<alias> <host:port> <nsh-sign-...>
//
// Blank lines and lines starting with '#' are skipped.
func ParseKnownHops(r io.Reader) (KnownHops, error) {
	scanner := bufio.NewScanner(r)
	khops := make(KnownHops)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		hop, err := parseLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "known hops: line %d", lineNum)
		}
		if _, dup := khops[hop.Alias]; dup {
			return nil, errors.Errorf("known hops: line %d: duplicate alias %q", lineNum, hop.Alias)
		}
		khops[hop.Alias] = hop
	}
	return khops, scanner.Err()
}

// ParseKnownHopsFile opens and parses the known_hops file at path.
func ParseKnownHopsFile(path string) (KnownHops, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ParseKnownHops(r)
}

// Lookup returns the hop registered under alias.
func (k KnownHops) Lookup(alias string) (KnownHop, bool) {
	h, ok := k[alias]
	return h, ok
}

func nextWord(line []byte) (string, []byte) {
	i := bytes.IndexAny(line, "\t ")
	if i == -1 {
		return string(line), nil
	}
	return string(line[:i]), bytes.TrimSpace(line[i:])
}

func parseLine(line []byte) (KnownHop, error) {
	alias, line := nextWord(line)
	address, line := nextWord(line)
	keyBlob, rest := nextWord(line)
	if alias == "" || address == "" || keyBlob == "" {
		return KnownHop{}, errors.New("expected <alias> <address> <key>")
	}
	if len(rest) != 0 {
		return KnownHop{}, errors.Errorf("unexpected trailing data %q", rest)
	}
	addr, err := ParseNetAddr(address)
	if err != nil {
		return KnownHop{}, err
	}
	key, err := keys.ParseSigningPublicKey(keyBlob)
	if err != nil {
		return KnownHop{}, err
	}
	return KnownHop{Alias: alias, Address: addr, Identity: *key}, nil
}
