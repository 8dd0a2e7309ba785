package config

import (
	"fmt"
	"strings"

	"github.com/multiformats/go-multiaddr"
)

// Validate checks the config for operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Chunks.Port < 0 || cfg.Chunks.Port > 65535 {
		return fmt.Errorf("chunks.port must be in range [0, 65535]")
	}
	if cfg.Chunks.Timeout < 0 {
		return fmt.Errorf("chunks.timeout must not be negative")
	}

	if cfg.Chunks.Source == "" {
		cfg.Chunks.Source = ChunkSourceLocal
	}
	switch cfg.Chunks.Source {
	case ChunkSourceLocal:
	case ChunkSourceRPC:
		if cfg.Chunks.RPCURL == "" {
			return fmt.Errorf("chunks.source=rpc requires chunks.rpc")
		}
		if !strings.HasPrefix(cfg.Chunks.RPCURL, "http://") && !strings.HasPrefix(cfg.Chunks.RPCURL, "https://") {
			return fmt.Errorf("chunks.rpc must be an http(s) URL")
		}
	case ChunkSourceP2P:
		if cfg.Chunks.Peer == "" {
			return fmt.Errorf("chunks.source=p2p requires chunks.peer")
		}
		if _, err := multiaddr.NewMultiaddr(cfg.Chunks.Peer); err != nil {
			return fmt.Errorf("chunks.peer: %w", err)
		}
	default:
		return fmt.Errorf("chunks.source must be local, rpc or p2p")
	}

	if cfg.Signer.AutoApprove && cfg.Network == Mainnet {
		return fmt.Errorf("signer.autoapprove is not allowed on mainnet")
	}
	return nil
}
