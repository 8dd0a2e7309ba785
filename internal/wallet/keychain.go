package wallet

import (
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/pkg/address"
	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// BIP-43 purpose numbers for each single-key output type.
const (
	PurposeBIP44 = 44 // P2PKH
	PurposeBIP49 = 49 // P2SH-P2WPKH
	PurposeBIP84 = 84 // P2WPKH
	PurposeBIP86 = 86 // P2TR
)

// Coin types (SLIP-44).
const (
	CoinTypeBitcoin = 0
	CoinTypeTestnet = 1
)

// DefaultPath returns the standard receive path m/purpose'/coin'/account'/0/index
// for an output type.
func DefaultPath(t address.Type, coinType, account, index uint32) (types.KeyPath, error) {
	var purpose uint32
	switch t {
	case address.P2PKH:
		purpose = PurposeBIP44
	case address.P2SH:
		purpose = PurposeBIP49
	case address.P2WPKH:
		purpose = PurposeBIP84
	case address.P2TR:
		purpose = PurposeBIP86
	default:
		return nil, fmt.Errorf("no standard path for %s", t)
	}
	return types.KeyPath{
		types.HardenedOffset + purpose,
		types.HardenedOffset + coinType,
		types.HardenedOffset + account,
		0,
		index,
	}, nil
}

// KeyChain derives keys from the device master key on demand. Private keys
// exist only for the duration of a Sign call.
type KeyChain struct {
	master *HDKey
}

// NewKeyChain creates a key chain from a 64-byte seed.
func NewKeyChain(seed []byte) (*KeyChain, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return &KeyChain{master: master}, nil
}

// Fingerprint identifies the master key.
func (kc *KeyChain) Fingerprint() string {
	return kc.master.Fingerprint()
}

// DerivePubKey returns the compressed public key at path.
func (kc *KeyChain) DerivePubKey(path types.KeyPath) ([]byte, error) {
	key, err := kc.master.DerivePath(path)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", path, err)
	}
	return key.PublicKeyBytes(), nil
}

// Sign signs a 32-byte digest with the key at path and returns the DER
// signature with its recovery parity.
func (kc *KeyChain) Sign(path types.KeyPath, digest types.Hash) ([]byte, crypto.SignInfo, error) {
	key, err := kc.master.DerivePath(path)
	if err != nil {
		return nil, crypto.SignInfo{}, fmt.Errorf("derive %s: %w", path, err)
	}
	priv, err := key.PrivateKey()
	if err != nil {
		return nil, crypto.SignInfo{}, err
	}
	defer priv.Zero()

	der, info, err := priv.SignDigest(digest[:])
	if err != nil {
		return nil, crypto.SignInfo{}, fmt.Errorf("sign with %s: %w", path, err)
	}
	return der, info, nil
}
