// Package node assembles the withdrawal signer: chunk store, device key,
// chunk transports, confirmation UI and the JSON-RPC server.
package node

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/stbtc-signer/config"
	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	klog "github.com/Klingon-tech/stbtc-signer/internal/log"
	"github.com/Klingon-tech/stbtc-signer/internal/p2p"
	"github.com/Klingon-tech/stbtc-signer/internal/rpc"
	"github.com/Klingon-tech/stbtc-signer/internal/rpcclient"
	"github.com/Klingon-tech/stbtc-signer/internal/storage"
	"github.com/Klingon-tech/stbtc-signer/internal/ui"
	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
	"github.com/Klingon-tech/stbtc-signer/internal/withdraw"
	"github.com/Klingon-tech/stbtc-signer/pkg/address"
)

// Node is a fully-initialized signer.
type Node struct {
	cfg    *config.Config
	params *config.Params
	logger zerolog.Logger

	db    storage.DB
	store *chunk.Store

	keys     *wallet.KeyChain
	source   chunk.Source
	handler  *withdraw.Handler
	notifier *ui.LogNotifier

	p2pNode   *p2p.Node
	rpcServer *rpc.Server
}

// Option customises New.
type Option func(*options)

type options struct {
	password  func() ([]byte, error)
	confirmer withdraw.Confirmer
	db        storage.DB
}

// WithPassword supplies the keystore password when no password file is
// configured.
func WithPassword(fn func() ([]byte, error)) Option {
	return func(o *options) { o.password = fn }
}

// WithConfirmer replaces the terminal prompt.
func WithConfirmer(c withdraw.Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithDB uses db as the chunk store instead of opening badger.
func WithDB(db storage.DB) Option {
	return func(o *options) { o.db = db }
}

// New creates and initializes a signer. Listeners are bound here; Start
// only reports readiness.
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// ── 1. Network parameters ───────────────────────────────────────
	params, err := config.ParamsFor(cfg.Network)
	if err != nil {
		return nil, err
	}

	// ── 2. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		if err := os.MkdirAll(cfg.LogsDir(), 0700); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(cfg.LogsDir(), "signer.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(logFile)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(params.Network)).
		Uint64("chain_id", params.ChainID).
		Str("chunk_source", string(cfg.Chunks.Source)).
		Msg("Starting stBTC withdrawal signer")

	n := &Node{cfg: cfg, params: params, logger: logger}
	fail := func(err error) (*Node, error) {
		n.Stop()
		return nil, err
	}

	// ── 3. Chunk store ──────────────────────────────────────────────
	if o.db != nil {
		n.db = o.db
	} else {
		db, err := storage.NewBadger(cfg.ChunksDir())
		if err != nil {
			return nil, fmt.Errorf("open chunk store at %s: %w", cfg.ChunksDir(), err)
		}
		n.db = db
		logger.Info().Str("path", cfg.ChunksDir()).Msg("Chunk store opened")
	}
	n.store = chunk.NewStore(n.db)

	// ── 4. Device key ───────────────────────────────────────────────
	if cfg.Wallet.Key != "" {
		keys, err := n.loadKeys(o.password)
		if err != nil {
			return fail(err)
		}
		n.keys = keys
		logger.Info().Str("key", cfg.Wallet.Key).Str("fingerprint", keys.Fingerprint()).Msg("Signing key loaded")
	} else {
		logger.Warn().Msg("No wallet.key configured, withdrawal signing disabled")
	}

	// ── 5. P2P ──────────────────────────────────────────────────────
	if cfg.Chunks.Serve || cfg.Chunks.Source == config.ChunkSourceP2P {
		n.p2pNode = p2p.New(p2p.Config{
			ListenAddr: cfg.Chunks.ListenAddr,
			Port:       cfg.Chunks.Port,
			KeyFile:    cfg.P2PKeyFile(),
		})
		if err := n.p2pNode.Start(); err != nil {
			return fail(fmt.Errorf("start p2p: %w", err))
		}
		if cfg.Chunks.Serve {
			n.p2pNode.ServeChunks(n.store)
			logger.Info().Strs("addrs", n.p2pNode.Addrs()).Msg("Serving chunks over p2p")
		}
	}

	// ── 6. Chunk source ─────────────────────────────────────────────
	if n.source, err = n.chunkSource(); err != nil {
		return fail(err)
	}

	// ── 7. Withdrawal handler ───────────────────────────────────────
	n.notifier = ui.NewLogNotifier()
	if n.keys != nil {
		confirmer := o.confirmer
		if confirmer == nil {
			if cfg.Signer.AutoApprove {
				logger.Warn().Msg("Auto-approve enabled, withdrawals are signed without a prompt")
				confirmer = ui.NewAutoApprove()
			} else {
				confirmer = ui.NewTerminal()
			}
		}
		n.handler, err = withdraw.NewHandler(withdraw.Config{
			Source:    n.source,
			Keys:      n.keys,
			Codec:     address.NewCodec(params.Bitcoin),
			Confirmer: confirmer,
			Notifier:  n.notifier,
			ChainID:   params.ChainID,
		})
		if err != nil {
			return fail(fmt.Errorf("create withdraw handler: %w", err))
		}
	}

	// ── 8. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
		srv := rpc.New(rpcAddr, params, n.store, cfg.RPC)
		if n.handler != nil {
			srv.SetSigner(n.handler, n.keys)
		}
		if n.p2pNode != nil {
			srv.SetP2PNode(n.p2pNode)
		}
		if cfg.Metrics.Enabled {
			srv.EnableMetrics()
		}
		if err := srv.Start(); err != nil {
			return fail(fmt.Errorf("start rpc server: %w", err))
		}
		n.rpcServer = srv
		logger.Info().Str("addr", srv.Addr()).Msg("RPC server started")
	}

	return n, nil
}

// loadKeys decrypts the configured keystore entry into a key chain.
func (n *Node) loadKeys(password func() ([]byte, error)) (*wallet.KeyChain, error) {
	ks, err := wallet.NewKeystore(n.cfg.KeystoreDir())
	if err != nil {
		return nil, err
	}
	info, err := ks.Info(n.cfg.Wallet.Key)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", n.cfg.Wallet.Key, err)
	}
	if info.Network != string(n.params.Network) {
		return nil, fmt.Errorf("key %s belongs to %s, signer runs on %s", info.Name, info.Network, n.params.Network)
	}

	var pw []byte
	switch {
	case n.cfg.Wallet.PasswordFile != "":
		pw, err = loadPassword(n.cfg.Wallet.PasswordFile)
	case password != nil:
		pw, err = password()
	default:
		err = fmt.Errorf("wallet.passwordfile is not set")
	}
	if err != nil {
		return nil, fmt.Errorf("keystore password: %w", err)
	}
	defer zero(pw)

	seed, err := ks.Load(n.cfg.Wallet.Key, pw)
	if err != nil {
		return nil, fmt.Errorf("unlock key %s: %w", n.cfg.Wallet.Key, err)
	}
	defer zero(seed)
	return wallet.NewKeyChain(seed)
}

// chunkSource builds the verified source the handler reads chunks from.
func (n *Node) chunkSource() (chunk.Source, error) {
	timeout := n.cfg.Chunks.Timeout
	switch n.cfg.Chunks.Source {
	case config.ChunkSourceRPC:
		client := rpcclient.NewWithTimeout(n.cfg.Chunks.RPCURL, timeout)
		n.logger.Info().Str("endpoint", client.Endpoint()).Msg("Fetching chunks over rpc")
		return chunk.NewVerifier(rpcclient.NewChunkClient(client), "rpc"), nil
	case config.ChunkSourceP2P:
		id, err := n.p2pNode.AddPeerAddr(n.cfg.Chunks.Peer)
		if err != nil {
			return nil, fmt.Errorf("chunks.peer: %w", err)
		}
		n.logger.Info().Str("peer", id.String()).Msg("Fetching chunks over p2p")
		return chunk.NewVerifier(p2p.NewChunkClient(n.p2pNode, id, timeout), "p2p"), nil
	default:
		return chunk.NewVerifier(n.store, "local"), nil
	}
}

// Start reports the signer ready. All listeners are already bound by New.
func (n *Node) Start() error {
	n.logger.Info().
		Bool("signing", n.handler != nil).
		Str("rpc", n.RPCAddr()).
		Msg("Signer ready")
	return nil
}

// Stop shuts down listeners and closes the store. Safe on a partially
// built node.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.p2pNode != nil {
		n.p2pNode.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}
	if n.notifier != nil {
		signed, declined := n.notifier.Totals()
		n.logger.Info().Uint64("signed", signed).Uint64("declined", declined).Msg("Goodbye!")
	}
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Params returns the network parameters.
func (n *Node) Params() *config.Params { return n.params }

// Store returns the hosted chunk store.
func (n *Node) Store() *chunk.Store { return n.store }

// Handler returns the withdrawal handler, nil when no key is loaded.
func (n *Node) Handler() *withdraw.Handler { return n.handler }

// P2P returns the libp2p node, nil when p2p is off.
func (n *Node) P2P() *p2p.Node { return n.p2pNode }
