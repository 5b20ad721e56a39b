package keys

import (
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
)

// EncodeSigningKeyToPEM writes a signing (Ed25519) private key to PEM format.
func EncodeSigningKeyToPEM(w io.Writer, key *SigningKeyPair) error {
	p := pem.Block{
		Type:  PEMTypeSigningPrivate,
		Bytes: key.Private[:],
	}
	return pem.Encode(w, &p)
}

// SigningKeyFromPEM decodes a PEM block produced by EncodeSigningKeyToPEM.
func SigningKeyFromPEM(p *pem.Block) (*SigningKeyPair, error) {
	if p.Type != PEMTypeSigningPrivate {
		return nil, fmt.Errorf("wrong PEM type %q, want %q", p.Type, PEMTypeSigningPrivate)
	}
	out := new(SigningKeyPair)
	n := copy(out.Private[:], p.Bytes)
	if n != 32 || len(p.Bytes) != 32 {
		return nil, fmt.Errorf("unexpected key length (got %d, expected 32)", len(p.Bytes))
	}
	out.PublicFromPrivate()
	return out, nil
}

// ReadSigningKey reads the first PEM-encoded signing key from r.
func ReadSigningKey(r io.Reader) (*SigningKeyPair, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p, _ := pem.Decode(b)
	if p == nil {
		return nil, errors.New("not a PEM file")
	}
	return SigningKeyFromPEM(p)
}

// ReadSigningKeyFromPEMFile reads the first PEM-encoded signing key at the
// provided path.
func ReadSigningKeyFromPEMFile(path string) (*SigningKeyPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSigningKey(f)
}
