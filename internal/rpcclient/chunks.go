package rpcclient

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/internal/rpc"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// ChunkClient fetches leaves from a chunk host over chunk_getLeaf. Its
// results are untrusted; wrap it in chunk.NewVerifier before use.
type ChunkClient struct {
	client *Client
}

// NewChunkClient returns a leaf fetcher backed by client.
func NewChunkClient(client *Client) *ChunkClient {
	return &ChunkClient{client: client}
}

// FetchLeaf implements chunk.LeafFetcher.
func (cc *ChunkClient) FetchLeaf(ctx context.Context, root types.Hash, count, index uint64) (*chunk.Leaf, error) {
	var res rpc.LeafResult
	err := cc.client.CallContext(ctx, "chunk_getLeaf", rpc.LeafParam{
		Root:  root.String(),
		Count: count,
		Index: index,
	}, &res)
	if err != nil {
		return nil, err
	}

	data, err := hex.DecodeString(res.Data)
	if err != nil {
		return nil, fmt.Errorf("decode leaf data: %w", err)
	}
	proof := make([]types.Hash, len(res.Proof))
	for i, p := range res.Proof {
		if proof[i], err = types.HexToHash(p); err != nil {
			return nil, fmt.Errorf("decode proof %d: %w", i, err)
		}
	}
	return &chunk.Leaf{Data: data, Proof: proof}, nil
}

// PutPayload uploads data to the host's chunk store.
func (c *Client) PutPayload(ctx context.Context, data []byte) (*rpc.PayloadResult, error) {
	var res rpc.PayloadResult
	if err := c.CallContext(ctx, "chunk_put", rpc.PutParam{Data: hex.EncodeToString(data)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SignWithdrawal asks the signer to sign the payload (root, count) with
// the key at path.
func (c *Client) SignWithdrawal(ctx context.Context, path types.KeyPath, root types.Hash, count uint64) (*rpc.SignResult, error) {
	var res rpc.SignResult
	err := c.CallContext(ctx, "withdraw_sign", rpc.SignParam{
		Path:  path.String(),
		Root:  root.String(),
		Count: count,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
