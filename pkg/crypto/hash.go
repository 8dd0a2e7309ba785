// Package crypto provides the hash and signature primitives used by the
// signer: keccak256 for EIP-712 digests, double SHA-256 for Bitcoin signed
// messages, BLAKE3 for chunk commitments and secp256k1 ECDSA signing.
package crypto

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashConcat hashes the concatenation of the given byte slices with BLAKE3.
func HashConcat(parts ...[]byte) types.Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// Keccak256 computes the legacy (pre-NIST) Keccak-256 hash used by Ethereum
// over the concatenation of data.
func Keccak256(data ...[]byte) types.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// DoubleSHA256 computes sha256(sha256(data)).
func DoubleSHA256(data []byte) types.Hash {
	return types.Hash(chainhash.DoubleHashH(data))
}
