package rpc

import (
	"github.com/Klingon-tech/stbtc-signer/internal/withdraw"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// RootParam is used by endpoints that take a payload root.
type RootParam struct {
	Root string `json:"root"`
}

// LeafParam is used by chunk_getLeaf.
type LeafParam struct {
	Root  string `json:"root"`
	Count uint64 `json:"count"`
	Index uint64 `json:"index"`
}

// PutParam is used by chunk_put. Data is the raw payload as hex.
type PutParam struct {
	Data string `json:"data"`
}

// SignParam is used by withdraw_sign. Either Payload (the hex wire request)
// or Path, Root and Count must be set.
type SignParam struct {
	Version uint8  `json:"version"`
	Payload string `json:"payload,omitempty"`
	Path    string `json:"path,omitempty"`
	Root    string `json:"root,omitempty"`
	Count   uint64 `json:"count,omitempty"`
}

// DecodeParam is used by withdraw_decode.
type DecodeParam struct {
	Version uint8  `json:"version"`
	Root    string `json:"root"`
	Count   uint64 `json:"count"`
}

// AddressParam is used by signer_getAddress. An empty Path selects the
// standard receive path of Type at Account and Index.
type AddressParam struct {
	Path    string `json:"path,omitempty"`
	Type    string `json:"type"`
	Account uint32 `json:"account,omitempty"`
	Index   uint32 `json:"index,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// LeafResult is a chunk with its inclusion proof, hex encoded.
type LeafResult struct {
	Data  string   `json:"data"`
	Proof []string `json:"proof"`
}

// PayloadResult describes a stored payload.
type PayloadResult struct {
	Root  string `json:"root"`
	Count uint64 `json:"count"`
}

// SignResult is the outcome of withdraw_sign. Signature is set only when
// Status is 9000.
type SignResult struct {
	Status    string `json:"status"`
	Class     string `json:"class"`
	Signature string `json:"signature,omitempty"`
}

// NewSignResult converts a handler response.
func NewSignResult(resp withdraw.Response) *SignResult {
	r := &SignResult{Status: resp.Status.String(), Class: resp.Class}
	if len(resp.Data) > 0 {
		r.Signature = encodeHex(resp.Data)
	}
	return r
}

// DecodeResult is the decoded SafeTx of a stored payload together with the
// digests a signer would compute for it.
type DecodeResult struct {
	SafeTx          *withdraw.SafeTx `json:"safeTx"`
	Data            string           `json:"data"`
	Amount          string           `json:"amount"`
	TxDataHash      string           `json:"txDataHash"`
	StructHash      string           `json:"structHash"`
	DomainSeparator string           `json:"domainSeparator"`
	Digest          string           `json:"digest"`
}

// AddressResult is returned by signer_getAddress.
type AddressResult struct {
	Address string `json:"address"`
	Path    string `json:"path"`
	PubKey  string `json:"pubkey"`
	Type    string `json:"type"`
}

// SignerInfoResult is returned by signer_info.
type SignerInfoResult struct {
	Network     string `json:"network"`
	ChainID     uint64 `json:"chain_id"`
	Ticker      string `json:"ticker"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Signing     bool   `json:"signing"`
	Payloads    int    `json:"payloads"`
}

// NodeInfoResult is returned by net_getNodeInfo.
type NodeInfoResult struct {
	ID    string   `json:"id"`
	Addrs []string `json:"addrs"`
	Peers int      `json:"peers"`
}
