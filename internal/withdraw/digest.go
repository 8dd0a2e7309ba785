package withdraw

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// Digests holds the intermediate and final hashes of one SafeTx.
type Digests struct {
	TxData          types.Hash
	Struct          types.Hash
	DomainSeparator types.Hash
	Final           types.Hash
}

// DigestBuilder reconstructs the EIP-712 SafeTx digest from a chunked
// payload. Each stage uses its own accumulator; nothing is shared between
// calls.
type DigestBuilder struct {
	ext     *Extractor
	layout  *Layout
	chainID AbiWord
}

// NewDigestBuilder returns a builder reading from src with the given
// layout and EIP-712 chain id.
func NewDigestBuilder(src chunk.Source, layout *Layout, chainID uint64) *DigestBuilder {
	return &DigestBuilder{
		ext:     NewExtractor(src),
		layout:  layout,
		chainID: Uint64Word(chainID),
	}
}

func finalize(acc *crypto.Accumulator) (types.Hash, error) {
	h, err := acc.Final()
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %w", ErrBadState, err)
	}
	return h, nil
}

func update(acc *crypto.Accumulator, parts ...[]byte) error {
	if err := acc.Update(parts...); err != nil {
		return fmt.Errorf("%w: %w", ErrBadState, err)
	}
	return nil
}

// TxDataHash hashes the selector followed by both halves of every data
// chunk from DataStart to count-1.
func (b *DigestBuilder) TxDataHash(ctx context.Context, root types.Hash, count uint64) (types.Hash, error) {
	acc := crypto.NewAccumulator()

	selector, err := b.ext.Field(ctx, root, count, b.layout.Selector)
	if err != nil {
		return types.Hash{}, fmt.Errorf("selector: %w", err)
	}
	if err := update(acc, selector); err != nil {
		return types.Hash{}, err
	}

	for i := b.layout.DataStart; i < count; i++ {
		ref := chunk.Reference{Root: root, Count: count, Index: i}
		for _, off := range [2]int{0, AbiWordSize} {
			half, err := b.ext.Extract(ctx, ref, off, AbiWordSize)
			if err != nil {
				return types.Hash{}, fmt.Errorf("data chunk %d: %w", i, err)
			}
			if err := update(acc, half); err != nil {
				return types.Hash{}, err
			}
		}
	}
	return finalize(acc)
}

// StructHash hashes the eleven SafeTx words, taking the data word from
// txDataHash.
func (b *DigestBuilder) StructHash(ctx context.Context, root types.Hash, count uint64, txDataHash types.Hash) (types.Hash, error) {
	var words [StructWordCount]AbiWord
	for i, w := range b.layout.StructWords {
		switch w.Kind {
		case WordTypehash:
			words[i] = AbiWord(b.layout.SafeTxTypehash)
		case WordTxDataHash:
			words[i] = AbiWord(txDataHash)
		case WordField:
			word, err := b.ext.Word(ctx, root, count, w.Spec)
			if err != nil {
				return types.Hash{}, fmt.Errorf("field %s: %w", w.Name, err)
			}
			words[i] = word
		default:
			return types.Hash{}, fmt.Errorf("%w: word %s has kind %d", ErrBadState, w.Name, w.Kind)
		}
	}

	acc := crypto.NewAccumulator()
	for i := range words {
		if err := update(acc, words[i][:]); err != nil {
			return types.Hash{}, err
		}
	}
	return finalize(acc)
}

// DomainSeparator hashes the domain typehash, the chain id and the
// verifying contract word.
func (b *DigestBuilder) DomainSeparator(ctx context.Context, root types.Hash, count uint64) (types.Hash, error) {
	contract, err := b.ext.Word(ctx, root, count, b.layout.VerifyingContract)
	if err != nil {
		return types.Hash{}, fmt.Errorf("verifying contract: %w", err)
	}
	acc := crypto.NewAccumulator()
	if err := update(acc, b.layout.DomainTypehash[:], b.chainID[:], contract[:]); err != nil {
		return types.Hash{}, err
	}
	return finalize(acc)
}

// FinalDigest combines the domain separator and struct hash as
// keccak256(0x19 0x01 || domainSeparator || structHash).
func FinalDigest(domainSeparator, structHash types.Hash) (types.Hash, error) {
	acc := crypto.NewAccumulator()
	if err := update(acc, []byte{0x19, 0x01}, domainSeparator[:], structHash[:]); err != nil {
		return types.Hash{}, err
	}
	return finalize(acc)
}

// Compute runs every stage and returns all digests. Any failure aborts the
// whole computation.
func (b *DigestBuilder) Compute(ctx context.Context, root types.Hash, count uint64) (*Digests, error) {
	var d Digests
	var err error
	if d.TxData, err = b.TxDataHash(ctx, root, count); err != nil {
		return nil, err
	}
	if d.Struct, err = b.StructHash(ctx, root, count, d.TxData); err != nil {
		return nil, err
	}
	if d.DomainSeparator, err = b.DomainSeparator(ctx, root, count); err != nil {
		return nil, err
	}
	if d.Final, err = FinalDigest(d.DomainSeparator, d.Struct); err != nil {
		return nil, err
	}
	return &d, nil
}
