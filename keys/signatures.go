package keys

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/sirupsen/logrus"

	"nsh.computer/nsh/pkg/must"
)

// SigningPublicKey is an Ed25519 public key. It is the long-term identity of a
// node: the peer identity of an established session is always one of these.
type SigningPublicKey [32]byte

// SigningPrivateKey is the seed of an Ed25519 private key.
type SigningPrivateKey [32]byte

// SigningKeyPair is an Ed25519 key pair.
type SigningKeyPair struct {
	Public  SigningPublicKey
	Private SigningPrivateKey
}

// GenerateNewSigningKeyPair allocates a new SigningKeyPair and calls Generate.
func GenerateNewSigningKeyPair() *SigningKeyPair {
	out := new(SigningKeyPair)
	out.Generate()
	return out
}

// Generate populates e with a randomly generated Ed25519 key.
func (e *SigningKeyPair) Generate() {
	must.ReadRandom(e.Private[:])
	e.PublicFromPrivate()
}

// PublicFromPrivate populates e.Public based on e.Private.
func (e *SigningKeyPair) PublicFromPrivate() {
	k := ed25519.NewKeyFromSeed(e.Private[:])
	pk := k.Public().(ed25519.PublicKey)
	n := copy(e.Public[:], pk)
	if n != 32 {
		logrus.Panicf("unable to calculate Ed25519 public key: only got %d bytes, expected 32", n)
	}
}

// Sign signs msg with the private key.
func (e *SigningKeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(ed25519.NewKeyFromSeed(e.Private[:]), msg)
}

// Verify reports whether sig is a valid signature of msg by p.
func (p *SigningPublicKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(p[:]), msg, sig)
}

// X25519 derives the static key-exchange key pair that corresponds to the
// signing key. The private scalar is the clamped lower half of SHA-512(seed),
// exactly as Ed25519 uses it, so the public half matches SigningPublicKey.X25519.
func (e *SigningKeyPair) X25519() *X25519KeyPair {
	h := sha512.Sum512(e.Private[:])
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	out := new(X25519KeyPair)
	copy(out.Private[:], h[:32])
	for i := range h {
		h[i] = 0
	}
	out.PublicFromPrivate()
	return out
}

// X25519 converts an Ed25519 public key to its Montgomery (X25519) form.
func (p *SigningPublicKey) X25519() (*PublicKey, error) {
	point, err := new(edwards25519.Point).SetBytes(p[:])
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 public key: %w", err)
	}
	out := new(PublicKey)
	copy(out[:], point.BytesMontgomery())
	return out, nil
}

// IsZero is true for the zero value, which is never a valid identity.
func (p *SigningPublicKey) IsZero() bool {
	var zero SigningPublicKey
	return *p == zero
}

// SigningPublicKeyPrefix prefixes the text encoding of a SigningPublicKey.
const SigningPublicKeyPrefix = "nsh-sign-"

// String encodes a SigningPublicKey to a custom format.
func (p SigningPublicKey) String() string {
	b64 := base64.StdEncoding.EncodeToString(p[:])
	return fmt.Sprintf("%s%s", SigningPublicKeyPrefix, b64)
}

// ParseSigningPublicKey decodes the output of SigningPublicKey.String.
func ParseSigningPublicKey(encoded string) (*SigningPublicKey, error) {
	if !strings.HasPrefix(encoded, SigningPublicKeyPrefix) {
		return nil, fmt.Errorf("bad prefix, expected %s", SigningPublicKeyPrefix)
	}
	b, err := base64.StdEncoding.DecodeString(encoded[len(SigningPublicKeyPrefix):])
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length, got %d, expected %d", len(b), ed25519.PublicKeySize)
	}
	out := new(SigningPublicKey)
	copy(out[:], b)
	return out, nil
}

// PEMTypeSigningPrivate is the PEM block type of an encoded SigningPrivateKey.
const PEMTypeSigningPrivate = "NSH SIGNING PRIVATE KEY V1"

// String encodes a SigningPrivateKey to PEM.
func (k *SigningPrivateKey) String() string {
	block := pem.Block{
		Type:  PEMTypeSigningPrivate,
		Bytes: k[:],
	}
	return string(pem.EncodeToMemory(&block))
}
