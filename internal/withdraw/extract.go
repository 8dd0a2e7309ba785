package withdraw

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// AbiWordSize is the size of an ABI-encoded word.
const AbiWordSize = 32

// AbiWord is a 32-byte ABI word; short values are zero padded on the left.
type AbiWord [AbiWordSize]byte

// PadLeft zero fills dst and copies src into its low-order bytes. A source
// longer than a word fails with ErrBadState and leaves dst untouched.
func PadLeft(dst *AbiWord, src []byte) error {
	if dst == nil {
		return ErrInvalidArgs
	}
	if len(src) > AbiWordSize {
		return fmt.Errorf("%w: %d bytes do not fit an ABI word", ErrBadState, len(src))
	}
	*dst = AbiWord{}
	copy(dst[AbiWordSize-len(src):], src)
	return nil
}

// Uint64Word encodes v as a big-endian ABI word.
func Uint64Word(v uint64) AbiWord {
	var w AbiWord
	for i := 0; i < 8; i++ {
		w[AbiWordSize-1-i] = byte(v >> (8 * i))
	}
	return w
}

// Extractor reads fields out of a chunk source. Each call performs exactly
// one fetch and returns a fresh buffer.
type Extractor struct {
	src chunk.Source
}

// NewExtractor returns an extractor over src.
func NewExtractor(src chunk.Source) *Extractor {
	return &Extractor{src: src}
}

// Extract returns length bytes at offset inside the referenced chunk.
func (e *Extractor) Extract(ctx context.Context, ref chunk.Reference, offset, length int) ([]byte, error) {
	if e == nil || e.src == nil {
		return nil, ErrInvalidArgs
	}
	if ref.Root.IsZero() {
		return nil, ErrNullRoot
	}
	if offset < 0 || length < 0 || offset+length > chunk.Size {
		return nil, fmt.Errorf("%w: offset %d length %d", ErrInvalidArgs, offset, length)
	}

	data, err := e.src.Fetch(ctx, ref.Root, ref.Count, ref.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %w", ErrTransportFailure, ref.Index, err)
	}
	if len(data) > chunk.Size {
		return nil, fmt.Errorf("%w: chunk %d is %d bytes", ErrTransportFailure, ref.Index, len(data))
	}
	if len(data) < offset+length {
		return nil, fmt.Errorf("%w: chunk %d has %d bytes, need %d", ErrShortChunk, ref.Index, len(data), offset+length)
	}

	out := make([]byte, length)
	copy(out, data[offset:offset+length])
	return out, nil
}

// Field extracts f from the payload (root, count).
func (e *Extractor) Field(ctx context.Context, root types.Hash, count uint64, f FieldSpec) ([]byte, error) {
	ref := chunk.Reference{Root: root, Count: count, Index: f.Chunk}
	return e.Extract(ctx, ref, f.Offset, f.Length)
}

// Word extracts f and pads it into an ABI word.
func (e *Extractor) Word(ctx context.Context, root types.Hash, count uint64, f FieldSpec) (AbiWord, error) {
	var w AbiWord
	raw, err := e.Field(ctx, root, count, f)
	if err != nil {
		return w, err
	}
	if err := PadLeft(&w, raw); err != nil {
		return w, err
	}
	return w, nil
}
