package rpc

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/internal/metrics"
	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
	"github.com/Klingon-tech/stbtc-signer/internal/withdraw"
	"github.com/Klingon-tech/stbtc-signer/pkg/address"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

func parseRoot(s string) (types.Hash, *Error) {
	if s == "" {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: "root is required"}
	}
	root, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid root: %v", err)}
	}
	return root, nil
}

// chunkError maps chunk store errors to RPC errors.
func chunkError(err error) *Error {
	switch {
	case errors.Is(err, chunk.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, chunk.ErrCountMismatch), errors.Is(err, chunk.ErrIndexOutOfRange):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
}

// ── Chunk endpoints ─────────────────────────────────────────────────────

func (s *Server) handleChunkPut(req *Request) (interface{}, *Error) {
	var params PutParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	data, err := decodeHex(params.Data)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid data hex: %v", err)}
	}
	if len(data) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "data is required"}
	}

	root, count, err := s.store.Put(data)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("store payload: %v", err)}
	}
	return &PayloadResult{Root: root.String(), Count: count}, nil
}

func (s *Server) handleChunkInfo(req *Request) (interface{}, *Error) {
	var params RootParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	root, rpcErr := parseRoot(params.Root)
	if rpcErr != nil {
		return nil, rpcErr
	}
	count, err := s.store.Info(root)
	if err != nil {
		return nil, chunkError(err)
	}
	return &PayloadResult{Root: root.String(), Count: count}, nil
}

func (s *Server) handleChunkGetLeaf(ctx context.Context, req *Request) (interface{}, *Error) {
	var params LeafParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	root, rpcErr := parseRoot(params.Root)
	if rpcErr != nil {
		return nil, rpcErr
	}

	leaf, err := s.store.FetchLeaf(ctx, root, params.Count, params.Index)
	if err != nil {
		return nil, chunkError(err)
	}
	proof := make([]string, len(leaf.Proof))
	for i, h := range leaf.Proof {
		proof[i] = h.String()
	}
	s.logger.Debug().Str("root", root.String()).Uint64("index", params.Index).Msg("Leaf served")
	metrics.ObserveServed("rpc")
	return &LeafResult{Data: encodeHex(leaf.Data), Proof: proof}, nil
}

func (s *Server) handleChunkList(_ *Request) (interface{}, *Error) {
	roots, err := s.store.Roots()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	result := make([]PayloadResult, 0, len(roots))
	for _, root := range roots {
		count, err := s.store.Info(root)
		if err != nil {
			return nil, chunkError(err)
		}
		result = append(result, PayloadResult{Root: root.String(), Count: count})
	}
	return result, nil
}

func (s *Server) handleChunkDelete(req *Request) (interface{}, *Error) {
	var params RootParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	root, rpcErr := parseRoot(params.Root)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.store.Delete(root); err != nil {
		return nil, chunkError(err)
	}
	return true, nil
}

// ── Withdraw endpoints ──────────────────────────────────────────────────

func (s *Server) handleWithdrawSign(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.signer == nil {
		return nil, &Error{Code: CodeNotFound, Message: "signing not enabled"}
	}
	var params SignParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	var payload []byte
	if params.Payload != "" {
		raw, err := decodeHex(params.Payload)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid payload hex: %v", err)}
		}
		payload = raw
	} else {
		path, err := types.ParseKeyPath(params.Path)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid path: %v", err)}
		}
		root, rpcErr := parseRoot(params.Root)
		if rpcErr != nil {
			return nil, rpcErr
		}
		wr := &withdraw.Request{Path: path, ChunkCount: params.Count, Root: root}
		payload, err = wr.Encode()
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
	}

	resp := s.signer.Handle(ctx, params.Version, payload)
	return NewSignResult(resp), nil
}

func (s *Server) handleWithdrawDecode(ctx context.Context, req *Request) (interface{}, *Error) {
	var params DecodeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	root, rpcErr := parseRoot(params.Root)
	if rpcErr != nil {
		return nil, rpcErr
	}
	layout, err := withdraw.LayoutFor(params.Version)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if params.Count == 0 {
		if params.Count, err = s.store.Info(root); err != nil {
			return nil, chunkError(err)
		}
	}

	src := chunk.NewVerifier(s.store, "local")
	tx, err := withdraw.DecodeSafeTx(ctx, src, layout, root, params.Count)
	if err != nil {
		return nil, decodeError(err)
	}
	digests, err := withdraw.NewDigestBuilder(src, layout, s.params.ChainID).Compute(ctx, root, params.Count)
	if err != nil {
		return nil, decodeError(err)
	}
	rawAmount, err := withdraw.NewExtractor(src).Field(ctx, root, params.Count, layout.Amount)
	if err != nil {
		return nil, decodeError(err)
	}

	return &DecodeResult{
		SafeTx:          tx,
		Data:            tx.DataHex(),
		Amount:          withdraw.FormatAmount(binary.BigEndian.Uint64(rawAmount), layout.AmountDecimals, layout.Ticker),
		TxDataHash:      digests.TxData.String(),
		StructHash:      digests.Struct.String(),
		DomainSeparator: digests.DomainSeparator.String(),
		Digest:          digests.Final.String(),
	}, nil
}

func decodeError(err error) *Error {
	if errors.Is(err, withdraw.ErrMalformedInput) {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if errors.Is(err, chunk.ErrNotFound) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// ── Signer endpoints ────────────────────────────────────────────────────

func (s *Server) handleSignerGetAddress(req *Request) (interface{}, *Error) {
	if s.keys == nil {
		return nil, &Error{Code: CodeNotFound, Message: "signing not enabled"}
	}
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	typ, err := address.ParseType(params.Type)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	var path types.KeyPath
	if params.Path != "" {
		path, err = types.ParseKeyPath(params.Path)
	} else {
		path, err = wallet.DefaultPath(typ, s.params.CoinType, params.Account, params.Index)
	}
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	pub, err := s.keys.DerivePubKey(path)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	addr, err := s.codec.PubKeyToAddress(pub, typ)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return &AddressResult{
		Address: addr,
		Path:    path.Display(),
		PubKey:  encodeHex(pub),
		Type:    typ.String(),
	}, nil
}

func (s *Server) handleSignerInfo(_ *Request) (interface{}, *Error) {
	roots, err := s.store.Roots()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	info := &SignerInfoResult{
		Network:  string(s.params.Network),
		ChainID:  s.params.ChainID,
		Ticker:   s.params.Ticker,
		Signing:  s.signer != nil,
		Payloads: len(roots),
	}
	if s.keys != nil {
		info.Fingerprint = s.keys.Fingerprint()
	}
	return info, nil
}

// ── Network endpoints ───────────────────────────────────────────────────

func (s *Server) handleNetGetNodeInfo(_ *Request) (interface{}, *Error) {
	if s.p2pNode == nil {
		return nil, &Error{Code: CodeNotFound, Message: "p2p not enabled"}
	}
	return &NodeInfoResult{
		ID:    s.p2pNode.ID().String(),
		Addrs: s.p2pNode.Addrs(),
		Peers: s.p2pNode.PeerCount(),
	}, nil
}
