package config

import "time"

// DefaultChunkTimeout bounds a single remote chunk fetch.
const DefaultChunkTimeout = 10 * time.Second

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       7545,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Chunks: ChunksConfig{
			Source:     ChunkSourceLocal,
			Timeout:    DefaultChunkTimeout,
			Serve:      false,
			ListenAddr: "0.0.0.0",
			Port:       7546,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 7645
	cfg.Chunks.Port = 7646
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
