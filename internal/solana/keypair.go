package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Keypair is an ed25519 signing identity.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromBytes restores a keypair from the 64-byte private key
// representation (seed || public key), the layout wallet files use.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	priv := ed25519.PrivateKey(append([]byte(nil), b...))

	// Verify the embedded public key matches the seed.
	derived := ed25519.NewKeyFromSeed(priv.Seed())
	if !priv.Equal(derived) {
		return nil, fmt.Errorf("keypair public half does not match seed")
	}
	return &Keypair{priv: priv}, nil
}

// Bytes returns the 64-byte private key representation.
func (k *Keypair) Bytes() []byte {
	return append([]byte(nil), k.priv...)
}

// Pubkey returns the base58-encoded public key.
func (k *Keypair) Pubkey() string {
	return base58.Encode(k.priv.Public().(ed25519.PublicKey))
}

// Sign signs a message with the private key.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// DecodePubkey decodes a base58 address into its 32-byte form.
func DecodePubkey(addr string) ([]byte, error) {
	b, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey %q: %w", addr, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("pubkey %q is %d bytes, want 32", addr, len(b))
	}
	return b, nil
}

// IsOnCurve reports whether a 32-byte point is a valid ed25519 curve
// point. Wallet and mint addresses are on-curve; program derived
// addresses are deliberately off-curve.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// ValidatePubkey checks that an address decodes to an on-curve point.
func ValidatePubkey(addr string) error {
	b, err := DecodePubkey(addr)
	if err != nil {
		return err
	}
	if !IsOnCurve(b) {
		return fmt.Errorf("pubkey %q is not on the ed25519 curve", addr)
	}
	return nil
}
