package crypto

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

func compactFromKey(t *testing.T, key *PrivateKey, hash []byte) []byte {
	t.Helper()
	return ecdsa.SignCompact(key.key, hash, true)
}
