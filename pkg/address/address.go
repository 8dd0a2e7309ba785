// Package address classifies Bitcoin output scripts and renders addresses
// for scripts and public keys on a given network.
package address

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// MaxLength bounds the textual length of any address this package accepts.
const MaxLength = 90

// Type identifies a standard output script template.
type Type uint8

// Output types.
const (
	Unknown Type = iota
	P2PKH
	P2SH
	P2WPKH
	P2WSH
	P2TR
)

// String returns the human-readable name of the output type.
func (t Type) String() string {
	switch t {
	case P2PKH:
		return "p2pkh"
	case P2SH:
		return "p2sh"
	case P2WPKH:
		return "p2wpkh"
	case P2WSH:
		return "p2wsh"
	case P2TR:
		return "p2tr"
	default:
		return "unknown"
	}
}

// ParseType parses the name produced by Type.String.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{P2PKH, P2SH, P2WPKH, P2WSH, P2TR} {
		if t.String() == s {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown address type %q", s)
}

var (
	// ErrUnknownScript is returned for scripts outside the supported templates.
	ErrUnknownScript = errors.New("unknown script type")
	// ErrUnsupportedType is returned when a public key cannot be encoded
	// under the requested type.
	ErrUnsupportedType = errors.New("address type not derivable from a public key")
)

// Codec converts scripts and public keys to addresses for one network.
type Codec struct {
	params *chaincfg.Params
}

// NewCodec returns a codec bound to the given network parameters.
func NewCodec(params *chaincfg.Params) *Codec {
	return &Codec{params: params}
}

// Params returns the network parameters of the codec.
func (c *Codec) Params() *chaincfg.Params {
	return c.params
}

// ClassifyScript returns the output type of script.
func (c *Codec) ClassifyScript(script []byte) (Type, error) {
	switch txscript.GetScriptClass(script) {
	case txscript.PubKeyHashTy:
		return P2PKH, nil
	case txscript.ScriptHashTy:
		return P2SH, nil
	case txscript.WitnessV0PubKeyHashTy:
		return P2WPKH, nil
	case txscript.WitnessV0ScriptHashTy:
		return P2WSH, nil
	case txscript.WitnessV1TaprootTy:
		return P2TR, nil
	default:
		return Unknown, ErrUnknownScript
	}
}

// ScriptToAddress renders the address paid by script. The script must
// classify as t.
func (c *Codec) ScriptToAddress(script []byte, t Type) (string, error) {
	got, err := c.ClassifyScript(script)
	if err != nil {
		return "", err
	}
	if got != t {
		return "", fmt.Errorf("script is %s, expected %s", got, t)
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, c.params)
	if err != nil {
		return "", fmt.Errorf("extract address: %w", err)
	}
	if len(addrs) != 1 {
		return "", fmt.Errorf("script pays %d addresses, expected 1", len(addrs))
	}
	return addrs[0].EncodeAddress(), nil
}

// PubKeyToAddress encodes a compressed public key under type t. P2SH means
// P2SH-wrapped P2WPKH and P2TR is the BIP-86 key-path-only output.
func (c *Codec) PubKeyToAddress(pubKey []byte, t Type) (string, error) {
	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	compressed := key.SerializeCompressed()

	var addr btcutil.Address
	switch t {
	case P2PKH:
		addr, err = btcutil.NewAddressPubKeyHash(btcutil.Hash160(compressed), c.params)
	case P2WPKH:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(compressed), c.params)
	case P2SH:
		var witness *btcutil.AddressWitnessPubKeyHash
		witness, err = btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(compressed), c.params)
		if err != nil {
			break
		}
		var redeem []byte
		redeem, err = txscript.PayToAddrScript(witness)
		if err != nil {
			break
		}
		addr, err = btcutil.NewAddressScriptHash(redeem, c.params)
	case P2TR:
		tweaked := txscript.ComputeTaprootKeyNoScript(key)
		addr, err = btcutil.NewAddressTaproot(schnorr.SerializePubKey(tweaked), c.params)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	if err != nil {
		return "", fmt.Errorf("encode %s address: %w", t, err)
	}
	return addr.EncodeAddress(), nil
}

// PayToAddress returns the output script paying a textual address.
func (c *Codec) PayToAddress(addr string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, c.params)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if !decoded.IsForNet(c.params) {
		return nil, fmt.Errorf("address %s is not for %s", addr, c.params.Name)
	}
	return txscript.PayToAddrScript(decoded)
}
