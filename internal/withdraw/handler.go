package withdraw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/internal/log"
	"github.com/Klingon-tech/stbtc-signer/internal/metrics"
)

// Confirmer shows the withdrawal to the user and returns their decision.
type Confirmer interface {
	ConfirmWithdraw(ctx context.Context, amount, address string) (bool, error)
}

// Notifier is told the outcome of every request exactly once.
type Notifier interface {
	NotifyResult(success bool)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(success bool)

// NotifyResult calls f.
func (f NotifierFunc) NotifyResult(success bool) { f(success) }

// Response is the handler's reply: a status word and, on success, the
// 65-byte compact signature. Class labels the outcome for the host.
type Response struct {
	Status StatusWord
	Class  string
	Data   []byte
}

// Config wires a Handler.
type Config struct {
	Source    chunk.Source
	Keys      Keys
	Codec     AddressCodec
	Confirmer Confirmer
	Notifier  Notifier
	ChainID   uint64
	Logger    *zerolog.Logger
}

// Handler runs withdrawal requests one at a time:
// parse, bind and confirm, digest, sign, respond.
type Handler struct {
	mu sync.Mutex

	source    chunk.Source
	keys      Keys
	codec     AddressCodec
	confirmer Confirmer
	notifier  Notifier
	chainID   uint64
	logger    zerolog.Logger
}

// NewHandler validates cfg and returns a handler.
func NewHandler(cfg Config) (*Handler, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("withdraw handler: no chunk source")
	case cfg.Keys == nil:
		return nil, errors.New("withdraw handler: no keys")
	case cfg.Codec == nil:
		return nil, errors.New("withdraw handler: no address codec")
	case cfg.Confirmer == nil:
		return nil, errors.New("withdraw handler: no confirmer")
	case cfg.ChainID == 0:
		return nil, errors.New("withdraw handler: chain id is zero")
	}
	h := &Handler{
		source:    cfg.Source,
		keys:      cfg.Keys,
		codec:     cfg.Codec,
		confirmer: cfg.Confirmer,
		notifier:  cfg.Notifier,
		chainID:   cfg.ChainID,
		logger:    log.Withdraw,
	}
	if cfg.Logger != nil {
		h.logger = *cfg.Logger
	}
	if h.notifier == nil {
		h.notifier = NotifierFunc(func(bool) {})
	}
	return h, nil
}

// Handle processes one request. version selects the payload layout.
// The notifier is called exactly once, whatever the outcome.
func (h *Handler) Handle(ctx context.Context, version byte, payload []byte) Response {
	h.mu.Lock()
	defer h.mu.Unlock()

	started := time.Now()
	var (
		sig Signature
		err error
	)
	defer func() {
		h.notifier.NotifyResult(err == nil)
		metrics.ObserveWithdraw(Class(err), started)
	}()

	sig, err = h.run(ctx, version, payload)
	status := StatusFor(err)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("class", Class(err)).
			Str("status", status.String()).
			Dur("elapsed", time.Since(started)).
			Msg("Withdrawal not signed")
		return Response{Status: status, Class: Class(err)}
	}

	h.logger.Info().
		Str("status", status.String()).
		Dur("elapsed", time.Since(started)).
		Msg("Withdrawal signed")
	data := make([]byte, SignatureSize)
	copy(data, sig[:])
	return Response{Status: status, Class: Class(nil), Data: data}
}

func (h *Handler) run(ctx context.Context, version byte, payload []byte) (Signature, error) {
	layout, err := LayoutFor(version)
	if err != nil {
		return Signature{}, err
	}
	req, err := ParseRequest(payload)
	if err != nil {
		return Signature{}, err
	}
	if req.ChunkCount < layout.MinChunks {
		return Signature{}, fmt.Errorf("%w: %d chunks, layout v%d needs %d", ErrMalformedInput, req.ChunkCount, layout.Version, layout.MinChunks)
	}

	logger := h.logger.With().
		Str("root", req.Root.String()).
		Uint64("chunks", req.ChunkCount).
		Str("path", req.Path.Display()).
		Logger()
	logger.Debug().Msg("Withdrawal request parsed")

	binder := NewBinder(h.source, layout, h.codec, h.keys)
	w, err := binder.Bind(ctx, req.Root, req.ChunkCount, req.Path)
	if err != nil {
		return Signature{}, err
	}
	logger.Debug().
		Str("amount", w.AmountText).
		Str("redeemer", w.Redeemer).
		Str("type", w.AddressType.String()).
		Msg("Redeemer bound to signing key")

	ok, err := h.confirmer.ConfirmWithdraw(ctx, w.AmountText, w.Redeemer)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The host went away while the prompt was up.
		return Signature{}, fmt.Errorf("%w: confirmation aborted: %w", ErrTransportFailure, err)
	case err != nil:
		return Signature{}, fmt.Errorf("%w: %w", ErrUserDenied, err)
	}
	if !ok {
		return Signature{}, ErrUserDenied
	}

	builder := NewDigestBuilder(h.source, layout, h.chainID)
	digests, err := builder.Compute(ctx, req.Root, req.ChunkCount)
	if err != nil {
		return Signature{}, err
	}
	logger.Debug().
		Str("struct_hash", digests.Struct.String()).
		Str("domain_separator", digests.DomainSeparator.String()).
		Str("digest", digests.Final.String()).
		Msg("SafeTx digest computed")

	return NewSignatureCodec(h.keys).Sign(req.Path, digests.Final)
}
