// Package chunk moves large payloads between the host and the signing
// device in fixed-size pieces. The host splits a payload into 64-byte
// chunks and commits to them with a Merkle root; the device fetches chunks
// one at a time and accepts only those that prove membership under the root
// it was given.
package chunk

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// Size is the fixed chunk size in bytes.
const Size = 64

// MaxCount bounds the number of chunks in one payload.
const MaxCount = 1 << 20

var (
	// ErrNotFound is returned when no payload is known under a root.
	ErrNotFound = errors.New("chunk payload not found")
	// ErrIndexOutOfRange is returned for an index at or past the chunk count.
	ErrIndexOutOfRange = errors.New("chunk index out of range")
	// ErrCountMismatch is returned when the requested count differs from the
	// stored payload's count.
	ErrCountMismatch = errors.New("chunk count does not match payload")
	// ErrProofInvalid is returned when a leaf does not verify under the root.
	ErrProofInvalid = errors.New("chunk proof does not verify")
	// ErrOversized is returned for a chunk longer than Size.
	ErrOversized = errors.New("chunk exceeds maximum size")
)

// Reference names one chunk of a committed payload.
type Reference struct {
	Root  types.Hash
	Count uint64
	Index uint64
}

// String formats the reference for logs.
func (r Reference) String() string {
	return fmt.Sprintf("%s[%d/%d]", r.Root, r.Index, r.Count)
}

// Source returns authenticated chunk bytes. Implementations may block on
// I/O and must honor ctx.
type Source interface {
	Fetch(ctx context.Context, root types.Hash, count, index uint64) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, root types.Hash, count, index uint64) ([]byte, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, root types.Hash, count, index uint64) ([]byte, error) {
	return f(ctx, root, count, index)
}

// Leaf is an unauthenticated chunk as delivered by a transport, together
// with its inclusion proof.
type Leaf struct {
	Data  []byte       `json:"data"`
	Proof []types.Hash `json:"proof"`
}

// LeafFetcher retrieves leaves from a host. Its results are not trusted.
type LeafFetcher interface {
	FetchLeaf(ctx context.Context, root types.Hash, count, index uint64) (*Leaf, error)
}

// Split cuts data into Size-byte chunks. The last chunk is zero padded.
func Split(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	n := (len(data) + Size - 1) / Size
	chunks := make([][]byte, n)
	for i := range chunks {
		c := make([]byte, Size)
		copy(c, data[i*Size:])
		chunks[i] = c
	}
	return chunks
}

// CheckRange validates index against count.
func CheckRange(count, index uint64) error {
	if count == 0 || count > MaxCount {
		return fmt.Errorf("%w: count %d", ErrIndexOutOfRange, count)
	}
	if index >= count {
		return fmt.Errorf("%w: index %d, count %d", ErrIndexOutOfRange, index, count)
	}
	return nil
}
