package withdraw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// Request is a parsed withdrawal request:
//
//	u8 path_len || u32be path[path_len] || compact-size chunk_count || root[32]
type Request struct {
	Path       types.KeyPath
	ChunkCount uint64
	Root       types.Hash
}

// ParseRequest decodes a request payload. Any framing error, a path longer
// than types.MaxKeyPathSteps, a zero count or root, or trailing bytes is
// ErrMalformedInput.
func ParseRequest(payload []byte) (*Request, error) {
	r := bytes.NewReader(payload)

	n, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing path length", ErrMalformedInput)
	}
	if int(n) > types.MaxKeyPathSteps {
		return nil, fmt.Errorf("%w: key path has %d steps, max %d", ErrMalformedInput, n, types.MaxKeyPathSteps)
	}
	path := make(types.KeyPath, n)
	var step [4]byte
	for i := range path {
		if _, err := io.ReadFull(r, step[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated key path", ErrMalformedInput)
		}
		path[i] = binary.BigEndian.Uint32(step[:])
	}

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk count: %w", ErrMalformedInput, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: zero chunk count", ErrMalformedInput)
	}

	var root types.Hash
	if _, err := io.ReadFull(r, root[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated data root", ErrMalformedInput)
	}
	if root.IsZero() {
		return nil, fmt.Errorf("%w: null data root", ErrMalformedInput)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedInput, r.Len())
	}

	return &Request{Path: path, ChunkCount: count, Root: root}, nil
}

// Encode serializes the request in wire format.
func (req *Request) Encode() ([]byte, error) {
	if len(req.Path) > types.MaxKeyPathSteps {
		return nil, fmt.Errorf("key path has %d steps, max %d", len(req.Path), types.MaxKeyPathSteps)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(len(req.Path)))
	for _, step := range req.Path {
		binary.Write(&buf, binary.BigEndian, step)
	}
	if err := wire.WriteVarInt(&buf, 0, req.ChunkCount); err != nil {
		return nil, err
	}
	buf.Write(req.Root[:])
	return buf.Bytes(), nil
}
