package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignInfo carries the recovery data that accompanies a DER signature.
type SignInfo struct {
	// OddY is set when the y coordinate of the nonce point R is odd.
	OddY bool
}

// Parity returns 1 for an odd R.y and 0 otherwise.
func (s SignInfo) Parity() byte {
	if s.OddY {
		return 1
	}
	return 0
}

// Signer signs 32-byte digests with ECDSA/secp256k1.
type Signer interface {
	// SignDigest produces a DER signature and the parity of R.y.
	SignDigest(hash []byte) ([]byte, SignInfo, error)
	// PublicKey returns the compressed 33-byte public key.
	PublicKey() []byte
}

// PrivateKey wraps a secp256k1 private key for ECDSA signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// SignDigest produces a deterministic (RFC 6979) low-S ECDSA signature over
// a 32-byte hash, DER encoded, together with the parity of R.y.
func (pk *PrivateKey) SignDigest(hash []byte) ([]byte, SignInfo, error) {
	if len(hash) != 32 {
		return nil, SignInfo{}, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	// Compact layout: [27 + 4 + recovery code] || R || S.
	compact := ecdsa.SignCompact(pk.key, hash, true)
	if len(compact) != 65 {
		return nil, SignInfo{}, fmt.Errorf("unexpected compact signature length %d", len(compact))
	}
	code := compact[0] - 27 - 4

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(compact[1:33]); overflow {
		return nil, SignInfo{}, fmt.Errorf("signature r overflows group order")
	}
	if overflow := s.SetByteSlice(compact[33:65]); overflow {
		return nil, SignInfo{}, fmt.Errorf("signature s overflows group order")
	}
	der := ecdsa.NewSignature(&r, &s).Serialize()
	return der, SignInfo{OddY: code&1 == 1}, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifySignature checks a DER ECDSA signature against a 32-byte hash
// and a compressed public key. Returns false on any error.
func VerifySignature(hash, signature, publicKey []byte) bool {
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pubKey)
}

// RecoverCompact recovers the compressed public key from a 65-byte
// recoverable signature ([header] || R || S) over hash.
func RecoverCompact(signature, hash []byte) ([]byte, error) {
	pub, _, err := ecdsa.RecoverCompact(signature, hash)
	if err != nil {
		return nil, fmt.Errorf("recover public key: %w", err)
	}
	return pub.SerializeCompressed(), nil
}
