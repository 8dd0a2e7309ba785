package withdraw

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// SafeTx is a decoded view of the SafeTx fields in a payload. It is used
// for display and inspection only; signing never reads it.
type SafeTx struct {
	To                common.Address `json:"to"`
	Value             *uint256.Int   `json:"value"`
	Data              []byte         `json:"-"`
	Operation         uint8          `json:"operation"`
	SafeTxGas         *uint256.Int   `json:"safeTxGas"`
	BaseGas           *uint256.Int   `json:"baseGas"`
	GasPrice          *uint256.Int   `json:"gasPrice"`
	GasToken          common.Address `json:"gasToken"`
	RefundReceiver    common.Address `json:"refundReceiver"`
	Nonce             *uint256.Int   `json:"nonce"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

// DataHex returns the tx data as 0x-prefixed hex.
func (tx *SafeTx) DataHex() string {
	return "0x" + hex.EncodeToString(tx.Data)
}

// DecodeSafeTx reads every SafeTx field of the payload (root, count).
func DecodeSafeTx(ctx context.Context, src chunk.Source, layout *Layout, root types.Hash, count uint64) (*SafeTx, error) {
	if count < layout.MinChunks {
		return nil, fmt.Errorf("%w: %d chunks, need %d", ErrMalformedInput, count, layout.MinChunks)
	}
	ext := NewExtractor(src)
	tx := &SafeTx{}

	word := func(name string) (AbiWord, error) {
		w, ok := layout.Field(name)
		if !ok || w.Kind != WordField {
			return AbiWord{}, fmt.Errorf("%w: layout v%d has no field %s", ErrBadState, layout.Version, name)
		}
		v, err := ext.Word(ctx, root, count, w.Spec)
		if err != nil {
			return AbiWord{}, fmt.Errorf("field %s: %w", name, err)
		}
		return v, nil
	}
	addr := func(name string, dst *common.Address) error {
		w, err := word(name)
		if err != nil {
			return err
		}
		*dst = common.BytesToAddress(w[:])
		return nil
	}
	num := func(name string, dst **uint256.Int) error {
		w, err := word(name)
		if err != nil {
			return err
		}
		*dst = new(uint256.Int).SetBytes32(w[:])
		return nil
	}

	for _, f := range []struct {
		name string
		dst  *common.Address
	}{
		{"to", &tx.To},
		{"gasToken", &tx.GasToken},
		{"refundReceiver", &tx.RefundReceiver},
	} {
		if err := addr(f.name, f.dst); err != nil {
			return nil, err
		}
	}
	for _, f := range []struct {
		name string
		dst  **uint256.Int
	}{
		{"value", &tx.Value},
		{"safeTxGas", &tx.SafeTxGas},
		{"baseGas", &tx.BaseGas},
		{"gasPrice", &tx.GasPrice},
		{"nonce", &tx.Nonce},
	} {
		if err := num(f.name, f.dst); err != nil {
			return nil, err
		}
	}

	op, err := word("operation")
	if err != nil {
		return nil, err
	}
	tx.Operation = op[AbiWordSize-1]

	contract, err := ext.Word(ctx, root, count, layout.VerifyingContract)
	if err != nil {
		return nil, fmt.Errorf("verifying contract: %w", err)
	}
	tx.VerifyingContract = common.BytesToAddress(contract[:])

	selector, err := ext.Field(ctx, root, count, layout.Selector)
	if err != nil {
		return nil, fmt.Errorf("selector: %w", err)
	}
	tx.Data = append(tx.Data, selector...)
	for i := layout.DataStart; i < count; i++ {
		ref := chunk.Reference{Root: root, Count: count, Index: i}
		c, err := ext.Extract(ctx, ref, 0, chunk.Size)
		if err != nil {
			return nil, fmt.Errorf("data chunk %d: %w", i, err)
		}
		tx.Data = append(tx.Data, c...)
	}
	return tx, nil
}
