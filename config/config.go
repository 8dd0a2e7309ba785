// Package config handles signer configuration.
//
// Settings come from three layers, later ones winning: network defaults,
// the key = value config file in the data directory, and command-line
// flags. Protocol parameters (EIP-712 chain id, Bitcoin network) are not
// configurable; they follow from the network, see Params.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds the signer's runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// JSON-RPC server
	RPC RPCConfig

	// Chunk transport
	Chunks ChunksConfig

	// Device key
	Wallet WalletConfig

	// Withdrawal signing
	Signer SignerConfig

	// Prometheus endpoint
	Metrics MetricsConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// ChunkSource selects where the signer fetches withdrawal chunks from.
type ChunkSource string

const (
	ChunkSourceLocal ChunkSource = "local" // Own chunk store
	ChunkSourceRPC   ChunkSource = "rpc"   // Remote host over JSON-RPC
	ChunkSourceP2P   ChunkSource = "p2p"   // Remote host over libp2p
)

// ChunksConfig holds chunk hosting and fetching settings.
type ChunksConfig struct {
	Source  ChunkSource   `conf:"chunks.source"`
	RPCURL  string        `conf:"chunks.rpc"`  // Host RPC endpoint (source=rpc)
	Peer    string        `conf:"chunks.peer"` // Host multiaddr with /p2p/ id (source=p2p)
	Timeout time.Duration `conf:"chunks.timeout"`

	// Serving
	Serve      bool   `conf:"chunks.serve"` // Serve the local store over libp2p
	ListenAddr string `conf:"chunks.listen"`
	Port       int    `conf:"chunks.port"`
}

// WalletConfig holds the device key settings.
type WalletConfig struct {
	Key          string `conf:"wallet.key"`          // Keystore entry name; empty = no signing
	PasswordFile string `conf:"wallet.passwordfile"` // File holding the keystore password
}

// SignerConfig holds withdrawal signing settings.
type SignerConfig struct {
	AutoApprove bool `conf:"signer.autoapprove"` // Skip the confirmation prompt
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `conf:"metrics.enabled"` // Serve /metrics on the RPC listener
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.stbtc-signer
//	macOS:   ~/Library/Application Support/StBTCSigner
//	Windows: %APPDATA%\StBTCSigner
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stbtc-signer"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "StBTCSigner")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "StBTCSigner")
		}
		return filepath.Join(home, "AppData", "Roaming", "StBTCSigner")
	default:
		return filepath.Join(home, ".stbtc-signer")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// ChunksDir returns the chunk store directory.
func (c *Config) ChunksDir() string {
	return filepath.Join(c.NetworkDataDir(), "chunks")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// P2PKeyFile returns the path of the libp2p identity key.
func (c *Config) P2PKeyFile() string {
	return filepath.Join(c.NetworkDataDir(), "p2p.key")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "signer.conf")
}
