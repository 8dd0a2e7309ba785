package chunk

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/internal/log"
	"github.com/Klingon-tech/stbtc-signer/internal/metrics"
	"github.com/Klingon-tech/stbtc-signer/internal/storage"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// Key layout:
//
//	r/<root>                 -> count (u64 BE)
//	p/<root>/d/<index u64BE> -> chunk bytes
//	p/<root>/p/<index u64BE> -> proof (concatenated 32-byte hashes)
var (
	rootsPrefix   = []byte("r/")
	payloadPrefix = []byte("p/")
	dataPrefix    = []byte("d/")
	proofPrefix   = []byte("p/")
)

// Store persists committed payloads on the host so they can be served to a
// device over RPC or p2p.
type Store struct {
	db storage.DB
}

// NewStore returns a store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func rootKey(root types.Hash) []byte {
	return append(append([]byte{}, rootsPrefix...), root[:]...)
}

func (s *Store) payloadDB(root types.Hash) *storage.PrefixDB {
	prefix := append(append([]byte{}, payloadPrefix...), root[:]...)
	return storage.NewPrefixDB(s.db, append(prefix, '/'))
}

func indexKey(prefix []byte, index uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], index)
	return key
}

// Put splits data, commits to it and stores every leaf with its proof.
// Storing the same payload twice is a no-op.
func (s *Store) Put(data []byte) (types.Hash, uint64, error) {
	payload, err := NewPayload(data)
	if err != nil {
		return types.Hash{}, 0, err
	}
	return s.PutPayload(payload)
}

// PutPayload stores an already committed payload.
func (s *Store) PutPayload(payload *Payload) (types.Hash, uint64, error) {
	root, count := payload.Root(), payload.Count()

	pdb := s.payloadDB(root)
	batch := pdb.NewBatch()
	for i := uint64(0); i < count; i++ {
		leaf, err := payload.Leaf(i)
		if err != nil {
			return types.Hash{}, 0, err
		}
		if err := batch.Put(indexKey(dataPrefix, i), leaf.Data); err != nil {
			return types.Hash{}, 0, err
		}
		proof := make([]byte, 0, len(leaf.Proof)*types.HashSize)
		for _, h := range leaf.Proof {
			proof = append(proof, h[:]...)
		}
		if err := batch.Put(indexKey(proofPrefix, i), proof); err != nil {
			return types.Hash{}, 0, err
		}
	}
	if err := batch.Commit(); err != nil {
		return types.Hash{}, 0, fmt.Errorf("store chunks: %w", err)
	}

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], count)
	if err := s.db.Put(rootKey(root), n[:]); err != nil {
		return types.Hash{}, 0, fmt.Errorf("store root: %w", err)
	}
	s.updateGauge()

	log.Storage.Debug().Str("root", root.String()).Uint64("chunks", count).Msg("Payload stored")
	return root, count, nil
}

// Info returns the chunk count of a stored payload.
func (s *Store) Info(root types.Hash) (uint64, error) {
	raw, err := s.db.Get(rootKey(root))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, root)
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt count record for %s", root)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Leaf returns a stored chunk with its proof.
func (s *Store) Leaf(root types.Hash, index uint64) (*Leaf, error) {
	count, err := s.Info(root)
	if err != nil {
		return nil, err
	}
	if err := CheckRange(count, index); err != nil {
		return nil, err
	}

	pdb := s.payloadDB(root)
	data, err := pdb.Get(indexKey(dataPrefix, index))
	if err != nil {
		return nil, fmt.Errorf("read chunk %d: %w", index, err)
	}
	rawProof, err := pdb.Get(indexKey(proofPrefix, index))
	if err != nil {
		return nil, fmt.Errorf("read proof %d: %w", index, err)
	}
	if len(rawProof)%types.HashSize != 0 {
		return nil, fmt.Errorf("corrupt proof for chunk %d", index)
	}
	proof := make([]types.Hash, len(rawProof)/types.HashSize)
	for i := range proof {
		copy(proof[i][:], rawProof[i*types.HashSize:])
	}
	return &Leaf{Data: data, Proof: proof}, nil
}

// FetchLeaf implements LeafFetcher for the hosting side.
func (s *Store) FetchLeaf(ctx context.Context, root types.Hash, count, index uint64) (*Leaf, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	have, err := s.Info(root)
	if err != nil {
		return nil, err
	}
	if have != count {
		return nil, fmt.Errorf("%w: requested %d, have %d", ErrCountMismatch, count, have)
	}
	return s.Leaf(root, index)
}

// Roots lists every stored payload root.
func (s *Store) Roots() ([]types.Hash, error) {
	var roots []types.Hash
	err := s.db.ForEach(rootsPrefix, func(key, _ []byte) error {
		if len(key) != len(rootsPrefix)+types.HashSize {
			return nil
		}
		var h types.Hash
		copy(h[:], key[len(rootsPrefix):])
		roots = append(roots, h)
		return nil
	})
	return roots, err
}

// Delete removes a stored payload.
func (s *Store) Delete(root types.Hash) error {
	if _, err := s.Info(root); err != nil {
		return err
	}
	if err := s.db.Delete(rootKey(root)); err != nil {
		return err
	}
	if err := s.payloadDB(root).DeleteAll(); err != nil {
		return err
	}
	s.updateGauge()
	return nil
}

func (s *Store) updateGauge() {
	roots, err := s.Roots()
	if err != nil {
		return
	}
	metrics.Signer.StoredPayload.Set(float64(len(roots)))
}
