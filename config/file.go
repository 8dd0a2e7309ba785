package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Chunks
	case "chunks.source":
		cfg.Chunks.Source = ChunkSource(strings.ToLower(value))
	case "chunks.rpc":
		cfg.Chunks.RPCURL = value
	case "chunks.peer":
		cfg.Chunks.Peer = value
	case "chunks.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Chunks.Timeout = d
	case "chunks.serve":
		cfg.Chunks.Serve = parseBool(value)
	case "chunks.listen":
		cfg.Chunks.ListenAddr = value
	case "chunks.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Chunks.Port = port

	// Wallet
	case "wallet.key", "wallet":
		cfg.Wallet.Key = value
	case "wallet.passwordfile":
		cfg.Wallet.PasswordFile = value

	// Signer
	case "signer.autoapprove":
		cfg.Signer.AutoApprove = parseBool(value)

	// Metrics
	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# stBTC withdrawal signer configuration
#
# The EIP-712 chain id and the Bitcoin address network follow from the
# network setting and cannot be changed here.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.stbtc-signer)
# datadir = ~/.stbtc-signer

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + defaultRPCPort(network) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Chunks
# ============================================================================

# Where withdrawal chunks are fetched from: local, rpc or p2p
chunks.source = local
# chunks.rpc = http://127.0.0.1:7545
# chunks.peer = /ip4/127.0.0.1/tcp/7546/p2p/12D3KooW...
chunks.timeout = 10s

# Serve the local chunk store to other signers over libp2p
chunks.serve = false
chunks.listen = 0.0.0.0
chunks.port = ` + defaultChunkPort(network) + `

# ============================================================================
# Device Key
# ============================================================================

# Keystore entry used for signing (empty disables withdraw_sign)
# wallet.key = device
# wallet.passwordfile = ~/.stbtc-signer/password

# ============================================================================
# Signing
# ============================================================================

# Approve every withdrawal without prompting. Load tests only.
signer.autoapprove = false

# ============================================================================
# Metrics / Logging
# ============================================================================

metrics.enabled = true

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}

func defaultChunkPort(network NetworkType) string {
	if network == Testnet {
		return "7646"
	}
	return "7546"
}

func defaultRPCPort(network NetworkType) string {
	if network == Testnet {
		return "7645"
	}
	return "7545"
}
