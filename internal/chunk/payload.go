package chunk

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/pkg/merkle"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// Payload is an in-memory chunked payload with its Merkle tree. It serves
// as a LeafFetcher for tests and one-shot hosting, and as a trusted Source
// when the caller built it from local data.
type Payload struct {
	chunks [][]byte
	tree   *merkle.Tree
}

// NewPayload splits data into chunks and commits to them.
func NewPayload(data []byte) (*Payload, error) {
	return NewPayloadFromChunks(Split(data))
}

// NewPayloadFromChunks commits to pre-cut chunks. Every chunk must be at
// most Size bytes.
func NewPayloadFromChunks(chunks [][]byte) (*Payload, error) {
	if len(chunks) > MaxCount {
		return nil, fmt.Errorf("payload has %d chunks, max %d", len(chunks), MaxCount)
	}
	for i, c := range chunks {
		if len(c) > Size {
			return nil, fmt.Errorf("%w: chunk %d is %d bytes", ErrOversized, i, len(c))
		}
	}
	tree, err := merkle.New(chunks)
	if err != nil {
		return nil, err
	}
	return &Payload{chunks: chunks, tree: tree}, nil
}

// Root returns the Merkle root of the payload.
func (p *Payload) Root() types.Hash {
	return p.tree.Root()
}

// Count returns the number of chunks.
func (p *Payload) Count() uint64 {
	return p.tree.Count()
}

// Chunk returns a copy of chunk index.
func (p *Payload) Chunk(index uint64) ([]byte, error) {
	if err := CheckRange(p.Count(), index); err != nil {
		return nil, err
	}
	return append([]byte(nil), p.chunks[index]...), nil
}

// Leaf returns chunk index with its proof.
func (p *Payload) Leaf(index uint64) (*Leaf, error) {
	data, err := p.Chunk(index)
	if err != nil {
		return nil, err
	}
	proof, err := p.tree.Proof(index)
	if err != nil {
		return nil, err
	}
	return &Leaf{Data: data, Proof: proof}, nil
}

func (p *Payload) check(root types.Hash, count uint64) error {
	if root != p.Root() {
		return fmt.Errorf("%w: root %s", ErrNotFound, root)
	}
	if count != p.Count() {
		return fmt.Errorf("%w: requested %d, have %d", ErrCountMismatch, count, p.Count())
	}
	return nil
}

// FetchLeaf implements LeafFetcher.
func (p *Payload) FetchLeaf(ctx context.Context, root types.Hash, count, index uint64) (*Leaf, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.check(root, count); err != nil {
		return nil, err
	}
	return p.Leaf(index)
}

// Fetch implements Source without proof checks; the payload is local.
func (p *Payload) Fetch(ctx context.Context, root types.Hash, count, index uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.check(root, count); err != nil {
		return nil, err
	}
	return p.Chunk(index)
}
