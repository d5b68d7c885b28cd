// Package peerid defines the PeerId identifier used throughout gitpatchd:
// an opaque, comparable, base58-serializable wrapper around an Ed25519
// public key.
package peerid

import (
	"crypto/ed25519"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// Size is the length in bytes of a raw Ed25519 public key.
const Size = ed25519.PublicKeySize

// ID is an opaque, comparable, hashable identifier for a peer, derived
// from an Ed25519 public key. Equality is bitwise, via the comparable
// array representation below, so two IDs can be used directly as map keys.
type ID [Size]byte

// Nil is the zero-value ID, never a legitimate peer identity.
var Nil ID

// FromPublicKey builds an ID from a raw Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (ID, error) {
	if len(pub) != Size {
		return Nil, fmt.Errorf("peerid: bad public key length %d, want %d",
			len(pub), Size)
	}
	var id ID
	copy(id[:], pub)
	return id, nil
}

// PublicKey returns the underlying Ed25519 public key.
func (id ID) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

// String returns the base58btc encoding of the raw public key bytes.
func (id ID) String() string {
	return base58.Encode(id[:])
}

// Parse decodes a base58-encoded PeerId, as produced by String.
func Parse(s string) (ID, error) {
	decoded := base58.Decode(s)
	if len(decoded) != Size {
		return Nil, fmt.Errorf("peerid: invalid base58 peer id %q", s)
	}
	var id ID
	copy(id[:], decoded)
	return id, nil
}

// IsNil reports whether id is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}
