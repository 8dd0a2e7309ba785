package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// HDKey is a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DeriveChild derives a child key at the given index.
// For hardened derivation, add types.HardenedOffset to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives the key at path relative to k.
func (k *HDKey) DerivePath(path types.KeyPath) (*HDKey, error) {
	if len(path) > types.MaxKeyPathSteps {
		return nil, fmt.Errorf("key path has %d steps, max %d", len(path), types.MaxKeyPathSteps)
	}
	current := k
	for _, idx := range path {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// PrivateKeyBytes returns the raw 32-byte private key.
// Returns nil if this is a public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	return k.key.PublicKey().Key
}

// Fingerprint returns the BIP-32 fingerprint of this key (first four bytes
// of HASH160 of the public key), hex encoded.
func (k *HDKey) Fingerprint() string {
	return fmt.Sprintf("%x", btcutil.Hash160(k.PublicKeyBytes())[:4])
}

// PrivateKey returns the signing key. Callers should Zero it when done.
func (k *HDKey) PrivateKey() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot sign with a public-only key")
	}
	return crypto.PrivateKeyFromBytes(priv)
}

// IsPrivate returns true if this key contains a private key.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-key-only copy.
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}

// String returns the base58 extended key (xprv or xpub).
func (k *HDKey) String() string {
	return k.key.String()
}
