package chunk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/stbtc-signer/internal/log"
	"github.com/Klingon-tech/stbtc-signer/internal/metrics"
	"github.com/Klingon-tech/stbtc-signer/pkg/merkle"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// Verifier turns an untrusted LeafFetcher into a Source. A leaf is returned
// only if its proof verifies under the requested root and count.
type Verifier struct {
	fetcher   LeafFetcher
	transport string
	logger    zerolog.Logger
}

// NewVerifier wraps fetcher. transport labels metrics and logs ("rpc",
// "p2p", "memory").
func NewVerifier(fetcher LeafFetcher, transport string) *Verifier {
	return &Verifier{
		fetcher:   fetcher,
		transport: transport,
		logger:    log.Chunks.With().Str("transport", transport).Logger(),
	}
}

// Fetch implements Source.
func (v *Verifier) Fetch(ctx context.Context, root types.Hash, count, index uint64) ([]byte, error) {
	data, err := v.fetch(ctx, root, count, index)
	metrics.ObserveFetch(v.transport, err)
	if err != nil {
		v.logger.Debug().Err(err).Str("root", root.String()).Uint64("index", index).Msg("Chunk fetch failed")
		return nil, err
	}
	return data, nil
}

func (v *Verifier) fetch(ctx context.Context, root types.Hash, count, index uint64) ([]byte, error) {
	if err := CheckRange(count, index); err != nil {
		return nil, err
	}
	leaf, err := v.fetcher.FetchLeaf(ctx, root, count, index)
	if err != nil {
		return nil, fmt.Errorf("fetch leaf %d: %w", index, err)
	}
	if leaf == nil {
		return nil, fmt.Errorf("fetch leaf %d: empty response", index)
	}
	if len(leaf.Data) > Size {
		return nil, fmt.Errorf("%w: leaf %d is %d bytes", ErrOversized, index, len(leaf.Data))
	}
	if !merkle.Verify(root, count, index, leaf.Data, leaf.Proof) {
		return nil, fmt.Errorf("%w: leaf %d under %s", ErrProofInvalid, index, root)
	}
	return leaf.Data, nil
}
