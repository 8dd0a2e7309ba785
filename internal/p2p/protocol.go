package p2p

import (
	"time"

	"github.com/libp2p/go-libp2p/core/protocol"
)

const (
	// ChunkProtocol is the stream protocol ID for leaf requests.
	ChunkProtocol = protocol.ID("/stbtc-signer/chunks/1.0.0")

	// chunkReadTimeout is the max time to read a request or response.
	chunkReadTimeout = 5 * time.Second

	// maxChunkMessage bounds a JSON request or response on the wire. A leaf
	// is 64 bytes plus at most 20 proof hashes, hex encoded.
	maxChunkMessage = 4096
)

// ChunkRequest asks for leaf Index of the payload (Root, Count).
type ChunkRequest struct {
	Root  string `json:"root"`
	Count uint64 `json:"count"`
	Index uint64 `json:"index"`
}

// ChunkResponse carries a hex leaf and its proof, or an error message.
type ChunkResponse struct {
	Data  string   `json:"data,omitempty"`
	Proof []string `json:"proof,omitempty"`
	Error string   `json:"error,omitempty"`
}
