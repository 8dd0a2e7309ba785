package node

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/stbtc-signer/config"
	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/internal/rpc"
	"github.com/Klingon-tech/stbtc-signer/internal/rpcclient"
	"github.com/Klingon-tech/stbtc-signer/internal/storage"
	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.stbtc-signer/pw", filepath.Join(home, ".stbtc-signer/pw")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLoadPassword(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"plain", "hunter2", "hunter2", false},
		{"trailing newline", "hunter2\n", "hunter2", false},
		{"crlf", "hunter2\r\n", "hunter2", false},
		{"first line only", "hunter2\nignored\n", "hunter2", false},
		{"inner spaces kept", " pass word \n", " pass word ", false},
		{"empty", "", "", true},
		{"blank line", "\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pw")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			got, err := loadPassword(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("loadPassword: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("password = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadPassword_Missing(t *testing.T) {
	if _, err := loadPassword("/nonexistent/pw"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- Assembly ---

func TestNew_NoKey(t *testing.T) {
	n := newTestNode(t, testConfig(t))

	if n.Handler() != nil {
		t.Error("handler should be nil without wallet.key")
	}
	if n.P2P() != nil {
		t.Error("p2p should be off for a local source without serving")
	}
	if n.RPCAddr() == "" {
		t.Fatal("RPC server not started")
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var info rpc.SignerInfoResult
	client := rpcclient.New("http://" + n.RPCAddr())
	if err := client.Call("signer_info", nil, &info); err != nil {
		t.Fatalf("signer_info: %v", err)
	}
	if info.Signing {
		t.Error("signer_info reports signing without a key")
	}
	if info.ChainID != config.ChainIDSepolia {
		t.Errorf("chain id = %d, want %d", info.ChainID, config.ChainIDSepolia)
	}
}

func TestNew_RPCDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	n := newTestNode(t, cfg)
	if n.RPCAddr() != "" {
		t.Errorf("RPCAddr = %q, want empty", n.RPCAddr())
	}
}

func TestNew_WithKey(t *testing.T) {
	cfg := testConfig(t)
	writeTestKey(t, cfg, "device", string(config.Testnet), "secret")
	cfg.Wallet.Key = "device"
	cfg.Wallet.PasswordFile = writePasswordFile(t, "secret\n")

	n := newTestNode(t, cfg, WithConfirmer(approveAll{}))
	if n.Handler() == nil {
		t.Fatal("handler not created")
	}

	var info rpc.SignerInfoResult
	client := rpcclient.New("http://" + n.RPCAddr())
	if err := client.Call("signer_info", nil, &info); err != nil {
		t.Fatalf("signer_info: %v", err)
	}
	if !info.Signing || info.Fingerprint == "" {
		t.Errorf("signer_info = %+v, want signing with a fingerprint", info)
	}
}

func TestNew_PasswordOption(t *testing.T) {
	cfg := testConfig(t)
	writeTestKey(t, cfg, "device", string(config.Testnet), "secret")
	cfg.Wallet.Key = "device"

	n := newTestNode(t, cfg,
		WithConfirmer(approveAll{}),
		WithPassword(func() ([]byte, error) { return []byte("secret"), nil }),
	)
	if n.Handler() == nil {
		t.Fatal("handler not created")
	}
}

func TestNew_KeyErrors(t *testing.T) {
	tests := []struct {
		name     string
		network  string
		password string
		key      string
		wantErr  string
	}{
		{"wrong network", string(config.Mainnet), "secret", "device", "belongs to mainnet"},
		{"wrong password", string(config.Testnet), "other", "device", "unlock key"},
		{"missing key", string(config.Testnet), "secret", "absent", "key absent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			writeTestKey(t, cfg, "device", tt.network, "secret")
			cfg.Wallet.Key = tt.key
			cfg.Wallet.PasswordFile = writePasswordFile(t, tt.password)

			n, err := New(cfg, WithDB(storage.NewMemory()), WithConfirmer(approveAll{}))
			if err == nil {
				n.Stop()
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_NoPassword(t *testing.T) {
	cfg := testConfig(t)
	writeTestKey(t, cfg, "device", string(config.Testnet), "secret")
	cfg.Wallet.Key = "device"

	n, err := New(cfg, WithDB(storage.NewMemory()))
	if err == nil {
		n.Stop()
		t.Fatal("expected error without a password source")
	}
}

func TestNew_BadgerStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	root, count, err := n.Store().Put(bytes.Repeat([]byte{1}, 100))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	n.Stop()

	// Reopen: the payload survives.
	n, err = New(cfg)
	if err != nil {
		t.Fatalf("New again: %v", err)
	}
	defer n.Stop()
	got, err := n.Store().Info(root)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if got != count {
		t.Errorf("count = %d, want %d", got, count)
	}
}

// --- Chunk sources ---

func TestChunkSource_RPC(t *testing.T) {
	host := newTestNode(t, testConfig(t))
	data := bytes.Repeat([]byte{0xab, 0xcd}, 100)
	root, count, err := host.Store().Put(data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	cfg.Chunks.Source = config.ChunkSourceRPC
	cfg.Chunks.RPCURL = "http://" + host.RPCAddr()
	signer := newTestNode(t, cfg)

	assertPayload(t, signer.source, root, count, data)
}

func TestChunkSource_P2P(t *testing.T) {
	hostCfg := testConfig(t)
	hostCfg.RPC.Enabled = false
	hostCfg.Chunks.Serve = true
	host := newTestNode(t, hostCfg)
	data := bytes.Repeat([]byte{0x11, 0x22, 0x33}, 90)
	root, count, err := host.Store().Put(data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	cfg.Chunks.Source = config.ChunkSourceP2P
	cfg.Chunks.Peer = host.P2P().Addrs()[0]
	signer := newTestNode(t, cfg)

	assertPayload(t, signer.source, root, count, data)
}

func TestChunkSource_P2PBadPeer(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	cfg.Chunks.Source = config.ChunkSourceP2P
	cfg.Chunks.Peer = "/ip4/127.0.0.1/tcp/1"

	n, err := New(cfg, WithDB(storage.NewMemory()))
	if err == nil {
		n.Stop()
		t.Fatal("expected error for a peer address without /p2p/")
	}
}

// --- Helpers ---

type approveAll struct{}

func (approveAll) ConfirmWithdraw(context.Context, string, string) (bool, error) { return true, nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(config.Testnet)
	cfg.DataDir = t.TempDir()
	cfg.RPC.Port = 0
	cfg.RPC.AllowedIPs = nil
	cfg.Chunks.ListenAddr = "127.0.0.1"
	cfg.Chunks.Port = 0
	cfg.Chunks.Timeout = 5 * time.Second
	cfg.Log.Level = "error"
	return cfg
}

func newTestNode(t *testing.T, cfg *config.Config, opts ...Option) *Node {
	t.Helper()
	opts = append([]Option{WithDB(storage.NewMemory())}, opts...)
	n, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(n.Stop)
	return n
}

func writeTestKey(t *testing.T, cfg *config.Config, name, network, password string) {
	t.Helper()
	seed, err := wallet.SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatal(err)
	}
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		t.Fatal(err)
	}
	fast := wallet.EncryptionParams{Memory: 1024, Iterations: 1, Parallelism: 1}
	if _, err := ks.Create(name, network, seed, []byte(password), fast); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func writePasswordFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "password")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func assertPayload(t *testing.T, src chunk.Source, root types.Hash, count uint64, want []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var got []byte
	for i := uint64(0); i < count; i++ {
		c, err := src.Fetch(ctx, root, count, i)
		if err != nil {
			t.Fatalf("Fetch(%d): %v", i, err)
		}
		got = append(got, c...)
	}
	if !bytes.Equal(got[:len(want)], want) {
		t.Error("payload differs")
	}
}
