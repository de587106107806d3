// Package identity handles base58-encoded ed25519 identities used for
// trader authorities and API callers.
package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Errors returned by identity parsing and verification.
var (
	// ErrInvalidIdentity is returned when an identity string is not a
	// base58-encoded 32-byte ed25519 public key.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrBadSignature is returned when a signature does not verify
	// against the identity and payload.
	ErrBadSignature = errors.New("signature verification failed")
)

const signatureSize = ed25519.SignatureSize

// Parse decodes and validates a base58 identity string, checking that the
// bytes form a canonical point on the ed25519 curve.
func Parse(s string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIdentity, ed25519.PublicKeySize, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: not a curve point", ErrInvalidIdentity)
	}
	return ed25519.PublicKey(raw), nil
}

// Encode returns the base58 identity string for a public key.
func Encode(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// Verify checks an ed25519 signature over payload against a base58
// identity string.
func Verify(identityStr string, payload, sig []byte) error {
	pub, err := Parse(identityStr)
	if err != nil {
		return err
	}
	if len(sig) != signatureSize {
		return fmt.Errorf("%w: expected %d-byte signature, got %d", ErrBadSignature, signatureSize, len(sig))
	}
	if !ed25519.Verify(pub, payload, sig) {
		return ErrBadSignature
	}
	return nil
}
