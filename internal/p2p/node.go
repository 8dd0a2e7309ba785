// Package p2p serves and fetches withdrawal chunks between a chunk host and
// a signer over libp2p streams.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/stbtc-signer/internal/log"
)

// peerConnectTimeout bounds Connect when the caller's context has no deadline.
const peerConnectTimeout = 10 * time.Second

// Config holds P2P node configuration.
type Config struct {
	ListenAddr string
	Port       int
	KeyFile    string // Persistent identity key (empty = ephemeral, for tests)
}

// Node is a libp2p host that speaks the chunk protocol.
type Node struct {
	host   host.Host
	config Config
	logger zerolog.Logger

	mu    sync.RWMutex
	peers map[peer.ID]*Peer

	connNotify *connNotifier
}

// New creates a new P2P node with the given config.
func New(cfg Config) *Node {
	return &Node{
		config: cfg,
		logger: klog.P2P,
		peers:  make(map[peer.ID]*Peer),
	}
}

// Start creates the libp2p host and begins listening.
func (n *Node) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)
	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(addr),
	}

	// Load or generate persistent identity so the peer ID survives restarts.
	if n.config.KeyFile != "" {
		privKey, err := loadOrCreateIdentity(n.config.KeyFile)
		if err != nil {
			return fmt.Errorf("load p2p identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(privKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h

	n.connNotify = &connNotifier{node: n}
	h.Network().Notify(n.connNotify)

	n.logger.Info().Str("id", h.ID().String()).Strs("addrs", n.Addrs()).Msg("P2P host started")
	return nil
}

// Stop shuts down the P2P node.
func (n *Node) Stop() error {
	if n.host == nil {
		return nil
	}
	n.host.Network().StopNotify(n.connNotify)
	return n.host.Close()
}

// Host returns the underlying libp2p host (nil before Start).
func (n *Node) Host() host.Host {
	return n.host
}

// ID returns the peer ID of this node.
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the full multiaddrs of this node.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var addrs []string
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

// Connect dials a peer given as a full multiaddr ending in /p2p/<id> and
// returns its ID.
func (n *Node) Connect(ctx context.Context, addr string) (peer.ID, error) {
	if n.host == nil {
		return "", fmt.Errorf("node not started")
	}
	info, err := ParsePeerAddr(addr)
	if err != nil {
		return "", err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, peerConnectTimeout)
		defer cancel()
	}
	if err := n.host.Connect(ctx, *info); err != nil {
		return "", fmt.Errorf("connect %s: %w", info.ID, err)
	}
	return info.ID, nil
}

// AddPeerAddr records the addresses of a peer given as a full multiaddr so
// later streams to it dial on demand. It returns the peer's ID.
func (n *Node) AddPeerAddr(addr string) (peer.ID, error) {
	if n.host == nil {
		return "", fmt.Errorf("node not started")
	}
	info, err := ParsePeerAddr(addr)
	if err != nil {
		return "", err
	}
	n.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
	return info.ID, nil
}

// ParsePeerAddr parses a multiaddr with a /p2p/ component.
func ParsePeerAddr(addr string) (*peer.AddrInfo, error) {
	ma, err := multiaddr.NewMultiaddr(strings.TrimSpace(addr))
	if err != nil {
		return nil, fmt.Errorf("parse peer address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return nil, fmt.Errorf("peer address %s: %w", addr, err)
	}
	return info, nil
}

// DisconnectPeer closes all connections to a peer and removes it from the peer list.
func (n *Node) DisconnectPeer(id peer.ID) error {
	if n.host == nil {
		return fmt.Errorf("node not started")
	}
	n.removePeer(id)
	return n.host.Network().ClosePeer(id)
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// PeerList returns a snapshot of connected peers.
func (n *Node) PeerList() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

func (n *Node) addPeer(id peer.ID, inbound bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.peers[id]; !exists {
		n.peers[id] = &Peer{
			ID:          id,
			ConnectedAt: time.Now(),
			Inbound:     inbound,
		}
		n.logger.Debug().Str("peer", id.String()).Bool("inbound", inbound).Msg("Peer connected")
	}
}

func (n *Node) removePeer(id peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

// loadOrCreateIdentity reads the hex Ed25519 key at keyPath, creating it
// on first use.
func loadOrCreateIdentity(keyPath string) (libp2pcrypto.PrivKey, error) {
	data, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read node key: %w", err)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}

	return priv, nil
}
