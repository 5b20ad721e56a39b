package keys

import (
	"golang.org/x/crypto/curve25519"

	"nsh.computer/nsh/pkg/must"
)

// PublicKey is an X25519 public key.
type PublicKey [32]byte

// PrivateKey is an X25519 private key.
type PrivateKey [32]byte

// X25519KeyPair contains a Public and Private X25519 key. It is only ever used
// for key exchange, never as an identity.
type X25519KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// Generate overwrites x with a randomly generated new key pair.
func (x *X25519KeyPair) Generate() {
	must.ReadRandom(x.Private[:])
	x.PublicFromPrivate()
}

// PublicFromPrivate recalculates the Public key based on the current Private
// key.
func (x *X25519KeyPair) PublicFromPrivate() {
	curve25519.ScalarBaseMult((*[32]byte)(&x.Public), (*[32]byte)(&x.Private))
}

// GenerateNewX25519KeyPair allocates a new X25519KeyPair and calls generate.
func GenerateNewX25519KeyPair() *X25519KeyPair {
	x := new(X25519KeyPair)
	x.Generate()
	return x
}

// DH performs Diffie-Hellman key exchange with the provided Public key.
func (x *X25519KeyPair) DH(other []byte) ([]byte, error) {
	return curve25519.X25519(x.Private[:], other)
}

// Zero overwrites both halves of the key pair.
func (x *X25519KeyPair) Zero() {
	for i := range x.Private {
		x.Private[i] = 0
	}
	for i := range x.Public {
		x.Public[i] = 0
	}
}
