// Command testnet runs a chunk host and a signer locally and signs one
// withdrawal end to end.
//
// Usage: go run ./cmd/testnet/
//
// It creates a throwaway testnet key, boots a host that serves chunks over
// libp2p and a signer that fetches them from it with auto-approve on,
// stores a withdrawal paying the signer's own address on the host, asks the
// signer for a signature over RPC and checks it recovers to the signer key.
// Ctrl+C for early shutdown.
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/stbtc-signer/config"
	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	klog "github.com/Klingon-tech/stbtc-signer/internal/log"
	"github.com/Klingon-tech/stbtc-signer/internal/node"
	"github.com/Klingon-tech/stbtc-signer/internal/rpc"
	"github.com/Klingon-tech/stbtc-signer/internal/rpcclient"
	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
	"github.com/Klingon-tech/stbtc-signer/internal/withdraw"
	"github.com/Klingon-tech/stbtc-signer/pkg/address"
	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

const (
	keyName     = "testnet"
	keyPassword = "testnet"
	// 0.05 stBTC
	demoAmount = 50000000000000000
	// demoChunks is the size of the demo SafeTx payload.
	demoChunks = 12
)

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("testnet")

	logger.Info().Msg("=== stBTC signer local testnet ===")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	base, err := os.MkdirTemp("", "stbtc-testnet-")
	if err != nil {
		fatal("temp dir: %v", err)
	}
	defer os.RemoveAll(base)

	// ── Phase 1: Host ───────────────────────────────────────────────────
	hostCfg := localConfig(filepath.Join(base, "host"))
	hostCfg.Chunks.Serve = true
	host, err := node.New(hostCfg)
	if err != nil {
		fatal("host: %v", err)
	}
	defer host.Stop()
	logger.Info().Str("rpc", host.RPCAddr()).Strs("p2p", host.P2P().Addrs()).Msg("Host up")

	// ── Phase 2: Signer ─────────────────────────────────────────────────
	signerCfg := localConfig(filepath.Join(base, "signer"))
	if err := createKey(signerCfg); err != nil {
		fatal("key: %v", err)
	}
	signerCfg.Wallet.Key = keyName
	signerCfg.Signer.AutoApprove = true
	signerCfg.Chunks.Source = config.ChunkSourceP2P
	signerCfg.Chunks.Peer = host.P2P().Addrs()[0]
	if err := config.Validate(signerCfg); err != nil {
		fatal("signer config: %v", err)
	}
	signer, err := node.New(signerCfg, node.WithPassword(func() ([]byte, error) {
		return []byte(keyPassword), nil
	}))
	if err != nil {
		fatal("signer: %v", err)
	}
	defer signer.Stop()
	logger.Info().Str("rpc", signer.RPCAddr()).Msg("Signer up")

	hostRPC := rpcclient.New("http://" + host.RPCAddr())
	signerRPC := rpcclient.NewWithTimeout("http://"+signer.RPCAddr(), time.Minute)

	// ── Phase 3: Withdrawal to the signer's own address ─────────────────
	var addr rpc.AddressResult
	if err := signerRPC.CallContext(ctx, "signer_getAddress", rpc.AddressParam{Type: "p2wpkh"}, &addr); err != nil {
		fatal("signer_getAddress: %v", err)
	}
	script, err := address.NewCodec(signer.Params().Bitcoin).PayToAddress(addr.Address)
	if err != nil {
		fatal("redeemer script: %v", err)
	}
	chunks, err := withdraw.ComposePayload(&withdraw.LayoutV1, demoTemplate(), demoAmount, script)
	if err != nil {
		fatal("compose: %v", err)
	}
	var data []byte
	for _, c := range chunks {
		data = append(data, c...)
	}
	stored, err := hostRPC.PutPayload(ctx, data)
	if err != nil {
		fatal("chunk_put: %v", err)
	}
	root, err := types.HexToHash(stored.Root)
	if err != nil {
		fatal("root: %v", err)
	}
	logger.Info().
		Str("root", stored.Root).
		Uint64("chunks", stored.Count).
		Str("redeemer", addr.Address).
		Msg("Withdrawal stored on host")

	// ── Phase 4: Sign over p2p-fetched chunks ───────────────────────────
	path, err := types.ParseKeyPath(addr.Path)
	if err != nil {
		fatal("path: %v", err)
	}
	started := time.Now()
	res, err := signerRPC.SignWithdrawal(ctx, path, root, stored.Count)
	if err != nil {
		fatal("withdraw_sign: %v", err)
	}
	if res.Signature == "" {
		fatal("signer refused: status %s (%s)", res.Status, res.Class)
	}
	logger.Info().Str("status", res.Status).Dur("took", time.Since(started)).Msg("Withdrawal signed")

	// ── Phase 5: Verify against the host's view of the digest ───────────
	var decoded rpc.DecodeResult
	err = hostRPC.CallContext(ctx, "withdraw_decode", rpc.DecodeParam{Root: stored.Root, Count: stored.Count}, &decoded)
	if err != nil {
		fatal("withdraw_decode: %v", err)
	}
	if err := verify(res.Signature, decoded.Digest, addr.PubKey); err != nil {
		fatal("verify: %v", err)
	}
	logger.Info().
		Str("digest", decoded.Digest).
		Str("amount", decoded.Amount).
		Msg("Signature recovers to the signer key")

	logger.Info().Msg("=== Done ===")
}

// localConfig is a testnet config on loopback with ephemeral ports.
func localConfig(dataDir string) *config.Config {
	cfg := config.Default(config.Testnet)
	cfg.DataDir = dataDir
	cfg.RPC.Port = 0
	cfg.Chunks.ListenAddr = "127.0.0.1"
	cfg.Chunks.Port = 0
	cfg.Log.Level = "info"
	if err := config.EnsureDataDirs(cfg); err != nil {
		fatal("data dirs: %v", err)
	}
	return cfg
}

func createKey(cfg *config.Config) error {
	mnemonic, err := wallet.GenerateMnemonic(wallet.Entropy12Words)
	if err != nil {
		return err
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return err
	}
	_, err = ks.Create(keyName, string(cfg.Network), seed, []byte(keyPassword), wallet.DefaultParams())
	return err
}

// demoTemplate is a filler SafeTx payload whose verifying contract word
// holds a 20-byte address.
func demoTemplate() [][]byte {
	chunks := make([][]byte, demoChunks)
	for i := range chunks {
		c := make([]byte, chunk.Size)
		for j := range c {
			c[j] = byte(i*17 + j*3 + 5)
		}
		chunks[i] = c
	}
	vc := withdraw.LayoutV1.VerifyingContract
	clear(chunks[vc.Chunk][vc.Offset : vc.Offset+12])
	return chunks
}

func verify(sigHex, digestHex, pubKeyHex string) error {
	sig, err := decodeHex(sigHex)
	if err != nil {
		return err
	}
	want, err := decodeHex(pubKeyHex)
	if err != nil {
		return err
	}
	msg, err := withdraw.MessageDigest([]byte(digestHex))
	if err != nil {
		return err
	}
	got, err := crypto.RecoverCompact(sig, msg[:])
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return errors.New("signature belongs to another key")
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
