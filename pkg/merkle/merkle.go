// Package merkle implements the binary hash tree that commits to a chunked
// payload. Leaves and interior nodes are domain separated (0x00 / 0x01
// prefixes) and the tree shape follows RFC 6962, so a count of leaves
// uniquely determines every inclusion path.
package merkle

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// ErrEmptyTree is returned when a tree is built from no leaves.
var ErrEmptyTree = errors.New("merkle tree needs at least one leaf")

// LeafHash hashes a leaf payload.
func LeafHash(data []byte) types.Hash {
	return crypto.HashConcat([]byte{leafPrefix}, data)
}

// NodeHash hashes two child nodes.
func NodeHash(left, right types.Hash) types.Hash {
	return crypto.HashConcat([]byte{nodePrefix}, left[:], right[:])
}

// Tree holds the leaf hashes of a payload and answers root and proof
// queries. Interior nodes are recomputed on demand.
type Tree struct {
	leaves []types.Hash
}

// New builds a tree over the given leaf payloads.
func New(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	hashes := make([]types.Hash, len(leaves))
	for i, l := range leaves {
		hashes[i] = LeafHash(l)
	}
	return &Tree{leaves: hashes}, nil
}

// Count returns the number of leaves.
func (t *Tree) Count() uint64 {
	return uint64(len(t.leaves))
}

// Root returns the tree root.
func (t *Tree) Root() types.Hash {
	return subtreeRoot(t.leaves)
}

// Proof returns the inclusion path for leaf index, ordered from the sibling
// of the leaf up to the sibling just below the root.
func (t *Tree) Proof(index uint64) ([]types.Hash, error) {
	if index >= t.Count() {
		return nil, fmt.Errorf("leaf %d out of range (count %d)", index, t.Count())
	}
	return path(index, t.leaves), nil
}

// Verify checks that leaf is the payload at index in a tree of count leaves
// with the given root.
func Verify(root types.Hash, count, index uint64, leaf []byte, proof []types.Hash) bool {
	if count == 0 || index >= count {
		return false
	}
	fn, sn := index, count-1
	r := LeafHash(leaf)
	for _, p := range proof {
		if sn == 0 {
			return false
		}
		if fn&1 == 1 || fn == sn {
			r = NodeHash(p, r)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			r = NodeHash(r, p)
		}
		fn >>= 1
		sn >>= 1
	}
	return sn == 0 && r == root
}

// split returns the largest power of two strictly below n (n >= 2).
func split(n int) int {
	k := 1
	for k<<1 < n {
		k <<= 1
	}
	return k
}

func subtreeRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 1 {
		return hashes[0]
	}
	k := split(len(hashes))
	return NodeHash(subtreeRoot(hashes[:k]), subtreeRoot(hashes[k:]))
}

func path(index uint64, hashes []types.Hash) []types.Hash {
	if len(hashes) <= 1 {
		return nil
	}
	k := split(len(hashes))
	if index < uint64(k) {
		return append(path(index, hashes[:k]), subtreeRoot(hashes[k:]))
	}
	return append(path(index-uint64(k), hashes[k:]), subtreeRoot(hashes[:k]))
}
