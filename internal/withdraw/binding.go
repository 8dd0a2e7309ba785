package withdraw

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/pkg/address"
	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// Keys gives access to the device key without exposing it.
type Keys interface {
	// DerivePubKey returns the compressed public key at path.
	DerivePubKey(path types.KeyPath) ([]byte, error)
	// Sign returns a DER ECDSA signature over digest with the key at path.
	Sign(path types.KeyPath, digest types.Hash) ([]byte, crypto.SignInfo, error)
}

// AddressCodec classifies scripts and renders addresses for one network.
type AddressCodec interface {
	ClassifyScript(script []byte) (address.Type, error)
	ScriptToAddress(script []byte, t address.Type) (string, error)
	PubKeyToAddress(pubKey []byte, t address.Type) (string, error)
}

// Withdrawal is what the device learned about a request before asking the
// user: the amount and the redeemer address proven to belong to the key.
type Withdrawal struct {
	Amount      uint64
	AmountText  string
	Redeemer    string
	AddressType address.Type
	Script      []byte
}

// Binder reads the withdrawal amount and redeemer script from the payload
// and binds the redeemer to the device key.
type Binder struct {
	ext    *Extractor
	layout *Layout
	codec  AddressCodec
	keys   Keys
}

// NewBinder returns a binder reading from src.
func NewBinder(src chunk.Source, layout *Layout, codec AddressCodec, keys Keys) *Binder {
	return &Binder{ext: NewExtractor(src), layout: layout, codec: codec, keys: keys}
}

// Bind returns the withdrawal described by the payload if its redeemer
// address is the address of the key at path.
func (b *Binder) Bind(ctx context.Context, root types.Hash, count uint64, path types.KeyPath) (*Withdrawal, error) {
	rawAmount, err := b.ext.Field(ctx, root, count, b.layout.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	if len(rawAmount) != 8 {
		return nil, fmt.Errorf("%w: amount field is %d bytes", ErrBadState, len(rawAmount))
	}
	amount := binary.BigEndian.Uint64(rawAmount)

	script, err := b.redeemerScript(ctx, root, count)
	if err != nil {
		return nil, err
	}

	typ, err := b.codec.ClassifyScript(script)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	redeemer, err := b.codec.ScriptToAddress(script, typ)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	if err := b.checkOwnership(path, redeemer, typ); err != nil {
		return nil, err
	}

	return &Withdrawal{
		Amount:      amount,
		AmountText:  FormatAmount(amount, b.layout.AmountDecimals, b.layout.Ticker),
		Redeemer:    redeemer,
		AddressType: typ,
		Script:      script,
	}, nil
}

func (b *Binder) redeemerScript(ctx context.Context, root types.Hash, count uint64) ([]byte, error) {
	rawLen, err := b.ext.Field(ctx, root, count, b.layout.RedeemerLength)
	if err != nil {
		return nil, fmt.Errorf("redeemer length: %w", err)
	}
	if len(rawLen) != 2 {
		return nil, fmt.Errorf("%w: redeemer length field is %d bytes", ErrBadState, len(rawLen))
	}
	n := int(binary.BigEndian.Uint16(rawLen))
	if n > MaxRedeemerLength {
		n = MaxRedeemerLength
	}
	// n counts the script's own length prefix.
	if n < 2 {
		return nil, fmt.Errorf("%w: empty redeemer script", ErrInvalidScript)
	}

	spec := b.layout.RedeemerScript
	ref := chunk.Reference{Root: root, Count: count, Index: spec.Chunk}
	script, err := b.ext.Extract(ctx, ref, spec.Offset, n-1)
	if err != nil {
		return nil, fmt.Errorf("redeemer script: %w", err)
	}
	return script, nil
}

func (b *Binder) checkOwnership(path types.KeyPath, redeemer string, typ address.Type) error {
	if redeemer == "" || len(redeemer) > address.MaxLength {
		return fmt.Errorf("%w: redeemer address length %d", ErrAddressMismatch, len(redeemer))
	}
	pub, err := b.keys.DerivePubKey(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAddressMismatch, err)
	}
	derived, err := b.codec.PubKeyToAddress(pub, typ)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAddressMismatch, err)
	}
	if len(derived) != len(redeemer) || subtle.ConstantTimeCompare([]byte(derived), []byte(redeemer)) != 1 {
		return fmt.Errorf("%w: %s is not the %s address of %s", ErrAddressMismatch, redeemer, typ, path.Display())
	}
	return nil
}
