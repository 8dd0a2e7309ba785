package p2p

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/internal/metrics"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// ErrRemote is wrapped by errors reported by the serving peer.
var ErrRemote = errors.New("chunk host error")

// ServeChunks answers ChunkProtocol requests from fetcher. Call after Start.
func (n *Node) ServeChunks(fetcher chunk.LeafFetcher) {
	n.host.SetStreamHandler(ChunkProtocol, func(stream network.Stream) {
		defer stream.Close()
		_ = stream.SetReadDeadline(time.Now().Add(chunkReadTimeout))

		var req ChunkRequest
		if err := json.NewDecoder(io.LimitReader(stream, maxChunkMessage)).Decode(&req); err != nil {
			n.logger.Debug().Err(err).Str("peer", stream.Conn().RemotePeer().String()).Msg("Bad chunk request")
			stream.Reset()
			return
		}

		resp := n.answer(fetcher, &req)
		if resp.Error == "" {
			metrics.ObserveServed("p2p")
		}
		json.NewEncoder(stream).Encode(resp)
	})
}

func (n *Node) answer(fetcher chunk.LeafFetcher, req *ChunkRequest) *ChunkResponse {
	root, err := types.HexToHash(req.Root)
	if err != nil {
		return &ChunkResponse{Error: fmt.Sprintf("invalid root: %v", err)}
	}
	ctx, cancel := context.WithTimeout(context.Background(), chunkReadTimeout)
	defer cancel()

	leaf, err := fetcher.FetchLeaf(ctx, root, req.Count, req.Index)
	if err != nil {
		return &ChunkResponse{Error: err.Error()}
	}
	proof := make([]string, len(leaf.Proof))
	for i, h := range leaf.Proof {
		proof[i] = h.String()
	}
	return &ChunkResponse{Data: hex.EncodeToString(leaf.Data), Proof: proof}
}

// ChunkClient fetches leaves from one serving peer. Its results are
// untrusted; wrap it in chunk.NewVerifier before use.
type ChunkClient struct {
	node    *Node
	peer    peer.ID
	timeout time.Duration
}

// NewChunkClient returns a leaf fetcher that asks peerID. timeout bounds
// the wait for one response; zero selects the protocol default.
func NewChunkClient(n *Node, peerID peer.ID, timeout time.Duration) *ChunkClient {
	if timeout <= 0 {
		timeout = chunkReadTimeout
	}
	return &ChunkClient{node: n, peer: peerID, timeout: timeout}
}

// FetchLeaf implements chunk.LeafFetcher. Each call opens one stream.
func (c *ChunkClient) FetchLeaf(ctx context.Context, root types.Hash, count, index uint64) (*chunk.Leaf, error) {
	if c.node.host == nil {
		return nil, fmt.Errorf("node not started")
	}
	stream, err := c.node.host.NewStream(ctx, c.peer, ChunkProtocol)
	if err != nil {
		return nil, fmt.Errorf("open chunk stream: %w", err)
	}
	defer stream.Close()

	req := ChunkRequest{Root: root.String(), Count: count, Index: index}
	if err := json.NewEncoder(stream).Encode(&req); err != nil {
		stream.Reset()
		return nil, fmt.Errorf("write chunk request: %w", err)
	}
	stream.CloseWrite()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = stream.SetReadDeadline(deadline)

	var resp ChunkResponse
	if err := json.NewDecoder(io.LimitReader(stream, maxChunkMessage)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read chunk response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}

	data, err := hex.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode leaf data: %w", err)
	}
	proof := make([]types.Hash, len(resp.Proof))
	for i, p := range resp.Proof {
		if proof[i], err = types.HexToHash(p); err != nil {
			return nil, fmt.Errorf("decode proof %d: %w", i, err)
		}
	}
	return &chunk.Leaf{Data: data, Proof: proof}, nil
}
