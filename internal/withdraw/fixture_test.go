package withdraw

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
	"github.com/Klingon-tech/stbtc-signer/pkg/address"
	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const (
	testChainID   = 1
	testAmount    = 150000000000000000
	testAmountStr = "stBTC 0.15"
	testChunks    = 12
)

// spyKeys wraps a key chain and counts signing calls.
type spyKeys struct {
	mu      sync.Mutex
	kc      *wallet.KeyChain
	signs   int
	signErr error
}

func (k *spyKeys) DerivePubKey(path types.KeyPath) ([]byte, error) {
	return k.kc.DerivePubKey(path)
}

func (k *spyKeys) Sign(path types.KeyPath, digest types.Hash) ([]byte, crypto.SignInfo, error) {
	k.mu.Lock()
	k.signs++
	k.mu.Unlock()
	if k.signErr != nil {
		return nil, crypto.SignInfo{}, k.signErr
	}
	return k.kc.Sign(path, digest)
}

func (k *spyKeys) signCalls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.signs
}

type fakeConfirmer struct {
	approve bool
	err     error

	calls   int
	amount  string
	address string
}

func (c *fakeConfirmer) ConfirmWithdraw(_ context.Context, amount, address string) (bool, error) {
	c.calls++
	c.amount = amount
	c.address = address
	return c.approve, c.err
}

type spyNotifier struct {
	results []bool
}

func (n *spyNotifier) NotifyResult(success bool) {
	n.results = append(n.results, success)
}

// countingSource counts fetches and can fail them.
type countingSource struct {
	src     chunk.Source
	fetches int
	fail    error
}

func (s *countingSource) Fetch(ctx context.Context, root types.Hash, count, index uint64) ([]byte, error) {
	s.fetches++
	if s.fail != nil {
		return nil, s.fail
	}
	return s.src.Fetch(ctx, root, count, index)
}

var errTransport = errors.New("link down")

type fixture struct {
	keys  *spyKeys
	codec *address.Codec
	path  types.KeyPath
	addr  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	seed, err := wallet.SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	kc, err := wallet.NewKeyChain(seed)
	if err != nil {
		t.Fatalf("key chain: %v", err)
	}
	path, err := wallet.DefaultPath(address.P2WPKH, wallet.CoinTypeBitcoin, 0, 0)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	f := &fixture{
		keys:  &spyKeys{kc: kc},
		codec: address.NewCodec(&chaincfg.MainNetParams),
		path:  path,
	}
	f.addr = f.address(t, path, address.P2WPKH)
	return f
}

// address returns the address of the key at path under type typ.
func (f *fixture) address(t *testing.T, path types.KeyPath, typ address.Type) string {
	t.Helper()
	pub, err := f.keys.DerivePubKey(path)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	addr, err := f.codec.PubKeyToAddress(pub, typ)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	return addr
}

// script returns the output script of the key at path under type typ.
func (f *fixture) script(t *testing.T, path types.KeyPath, typ address.Type) []byte {
	t.Helper()
	script, err := f.codec.PayToAddress(f.address(t, path, typ))
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	return script
}

// testChunkData returns twelve filled chunks with a valid SafeTx layout,
// the amount at chunk 5 and a redeemer slot at chunk 10 holding script.
func testChunkData(script []byte) [][]byte {
	chunks := make([][]byte, testChunks)
	for i := range chunks {
		c := make([]byte, chunk.Size)
		for j := range c {
			c[j] = byte(i*31 + j*7 + 1)
		}
		chunks[i] = c
	}
	// The verifying contract word holds a 20-byte address.
	for j := 0; j < 12; j++ {
		chunks[7][j] = 0
	}
	binary.BigEndian.PutUint64(chunks[5][56:64], testAmount)
	setRedeemer(chunks, script)
	return chunks
}

// setRedeemer writes script into the redeemer slot of chunk 10.
func setRedeemer(chunks [][]byte, script []byte) {
	c := chunks[10]
	binary.BigEndian.PutUint16(c[30:32], uint16(len(script)+1))
	c[32] = byte(len(script))
	copy(c[33:], script)
}

func newPayload(t *testing.T, chunks [][]byte) *chunk.Payload {
	t.Helper()
	p, err := chunk.NewPayloadFromChunks(chunks)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func cloneChunks(chunks [][]byte) [][]byte {
	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		out[i] = append([]byte(nil), c...)
	}
	return out
}

// encodeRequest builds a wire request for payload p signed at path.
func encodeRequest(t *testing.T, path types.KeyPath, p *chunk.Payload) []byte {
	t.Helper()
	req := &Request{Path: path, ChunkCount: p.Count(), Root: p.Root()}
	b, err := req.Encode()
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return b
}
