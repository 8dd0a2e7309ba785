package crypto

import (
	"errors"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// ErrAccumulatorFinalized is returned when an accumulator is used after Final.
var ErrAccumulatorFinalized = errors.New("hash accumulator already finalized")

// Accumulator is a streaming keccak256 state for one digest. It is an
// explicit value owned by the caller: create one per digest, feed it with
// Update, and call Final exactly once.
type Accumulator struct {
	h    hash.Hash
	done bool
}

// NewAccumulator returns a fresh keccak256 accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{h: sha3.NewLegacyKeccak256()}
}

// Update absorbs the given byte slices in order.
func (a *Accumulator) Update(parts ...[]byte) error {
	if a.done {
		return ErrAccumulatorFinalized
	}
	for _, p := range parts {
		a.h.Write(p)
	}
	return nil
}

// Final returns the digest and closes the accumulator.
func (a *Accumulator) Final() (types.Hash, error) {
	if a.done {
		return types.Hash{}, ErrAccumulatorFinalized
	}
	a.done = true
	var out types.Hash
	a.h.Sum(out[:0])
	return out, nil
}
