// Package keys contains wrappers for X25519 and Ed25519 as used in nsh. It can
// read and write private keys from PEM files, and public keys from text.
//
// It defines two key types: DH and Signing. DH (Diffie-Hellman) corresponds to
// X25519 keys, and are used for secret key negotiation. Signing keys correspond
// to Ed25519 keys, and are the long-term identity of a node. A signing key can
// be projected to an X25519 key so that it can act as the static key of a
// handshake, but the two are never interchangeable as identities.
package keys
