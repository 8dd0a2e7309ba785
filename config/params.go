package config

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// EIP-712 chain ids of the Safe deployments.
const (
	ChainIDEthereum = 1
	ChainIDSepolia  = 11155111
)

// Params are the protocol parameters fixed by the network choice.
type Params struct {
	Network NetworkType
	// ChainID is the EIP-712 domain chain id.
	ChainID uint64
	// Bitcoin selects address encodings for redeemer scripts.
	Bitcoin *chaincfg.Params
	// CoinType is the BIP-44 coin type used for default key paths.
	CoinType uint32
	Ticker   string
}

var (
	mainnetParams = Params{
		Network:  Mainnet,
		ChainID:  ChainIDEthereum,
		Bitcoin:  &chaincfg.MainNetParams,
		CoinType: 0,
		Ticker:   "stBTC",
	}
	testnetParams = Params{
		Network:  Testnet,
		ChainID:  ChainIDSepolia,
		Bitcoin:  &chaincfg.TestNet3Params,
		CoinType: 1,
		Ticker:   "stBTC",
	}
)

// ParamsFor returns the protocol parameters of network.
func ParamsFor(network NetworkType) (*Params, error) {
	switch network {
	case Mainnet:
		p := mainnetParams
		return &p, nil
	case Testnet:
		p := testnetParams
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}
