package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Version is reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// Chunks
	ChunkSource  string
	ChunkRPC     string
	ChunkPeer    string
	ChunkTimeout time.Duration
	ServeChunks  bool
	ChunkPort    int

	// Wallet
	Key          string
	PasswordFile string

	// Signer
	AutoApprove bool

	// Metrics
	Metrics bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetRPC         bool
	SetServeChunks bool
	SetAutoApprove bool
	SetMetrics     bool
	SetLogJSON     bool
}

// ParseFlags parses command-line flags from os.Args.
func ParseFlags() *Flags {
	f, err := ParseArgs(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

// ParseArgs parses args into Flags.
func ParseArgs(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("signerd", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	testnet := fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// Chunks
	fs.StringVar(&f.ChunkSource, "chunk-source", "", "Chunk source: local, rpc or p2p")
	fs.StringVar(&f.ChunkRPC, "chunk-rpc", "", "Chunk host RPC endpoint")
	fs.StringVar(&f.ChunkPeer, "chunk-peer", "", "Chunk host libp2p multiaddr")
	fs.DurationVar(&f.ChunkTimeout, "chunk-timeout", 0, "Timeout of one remote chunk fetch")
	fs.BoolVar(&f.ServeChunks, "serve-chunks", false, "Serve the chunk store over libp2p")
	fs.IntVar(&f.ChunkPort, "chunk-port", 0, "libp2p chunk listen port")

	// Wallet
	fs.StringVar(&f.Key, "key", "", "Keystore entry used for signing")
	fs.StringVar(&f.PasswordFile, "password-file", "", "File holding the keystore password")

	// Signer
	fs.BoolVar(&f.AutoApprove, "autoapprove", false, "Approve withdrawals without prompting (testnet only)")

	// Metrics
	fs.BoolVar(&f.Metrics, "metrics", true, "Serve Prometheus metrics on /metrics")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *testnet {
		f.Network = string(Testnet)
	}
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetServeChunks = isFlagSet(fs, "serve-chunks")
	f.SetAutoApprove = isFlagSet(fs, "autoapprove")
	f.SetMetrics = isFlagSet(fs, "metrics")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	// Chunks
	if f.ChunkSource != "" {
		cfg.Chunks.Source = ChunkSource(strings.ToLower(f.ChunkSource))
	}
	if f.ChunkRPC != "" {
		cfg.Chunks.RPCURL = f.ChunkRPC
	}
	if f.ChunkPeer != "" {
		cfg.Chunks.Peer = f.ChunkPeer
	}
	if f.ChunkTimeout != 0 {
		cfg.Chunks.Timeout = f.ChunkTimeout
	}
	if f.SetServeChunks {
		cfg.Chunks.Serve = f.ServeChunks
	}
	if f.ChunkPort != 0 {
		cfg.Chunks.Port = f.ChunkPort
	}

	// Wallet
	if f.Key != "" {
		cfg.Wallet.Key = f.Key
	}
	if f.PasswordFile != "" {
		cfg.Wallet.PasswordFile = f.PasswordFile
	}

	// Signer
	if f.SetAutoApprove {
		cfg.Signer.AutoApprove = f.AutoApprove
	}

	// Metrics
	if f.SetMetrics {
		cfg.Metrics.Enabled = f.Metrics
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `signerd - stBTC withdrawal signer

Usage:
  signerd [options]
  signerd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.stbtc-signer)
  --config, -c    Config file path (default: <datadir>/signer.conf)

RPC Options:
  --rpc           Enable RPC server (default: true)
  --rpc-addr      RPC listen address (default: 127.0.0.1)
  --rpc-port      RPC port (mainnet: 7545, testnet: 7645)
  --rpc-allowed   Allowed IPs for RPC (comma-separated)
  --rpc-cors      Allowed CORS origins for RPC (comma-separated)

Chunk Options:
  --chunk-source  Where withdrawal chunks come from: local (default), rpc, p2p
  --chunk-rpc     Chunk host RPC endpoint (for --chunk-source=rpc)
  --chunk-peer    Chunk host multiaddr with /p2p/<id> (for --chunk-source=p2p)
  --chunk-timeout Timeout of one remote chunk fetch (default: 10s)
  --serve-chunks  Serve the local chunk store over libp2p
  --chunk-port    libp2p chunk port (mainnet: 7546, testnet: 7646)

Signing Options:
  --key           Keystore entry used for signing
  --password-file File holding the keystore password (prompted if omitted)
  --autoapprove   Approve withdrawals without prompting (testnet only)

Other Options:
  --metrics       Serve Prometheus metrics on /metrics (default: true)
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: <datadir>/logs/signer.log)
  --log-json      Output logs as JSON

Examples:
  # Host chunks and sign with the "device" key
  signerd --key=device

  # Sign on testnet, fetching chunks from a remote host over libp2p
  signerd --testnet --key=device --chunk-source=p2p \
    --chunk-peer=/ip4/10.0.0.2/tcp/7646/p2p/12D3KooW...
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("signerd version " + Version)
		os.Exit(0)
	}

	cfg, err := LoadWithFlags(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

// LoadWithFlags builds the configuration from defaults, the config file
// and already parsed flags.
func LoadWithFlags(flags *Flags) (*Config, error) {
	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.ChunksDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
