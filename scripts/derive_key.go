// derive_key.go prints the pubkey and address of a key path for a mnemonic
// file, without a running signer.
// Usage: go run scripts/derive_key.go <mnemonic-file> [path] [type] [mainnet|testnet]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/stbtc-signer/config"
	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
	"github.com/Klingon-tech/stbtc-signer/pkg/address"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <mnemonic-file> [path] [type] [network]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}
	mnemonic := wallet.NormalizeMnemonic(strings.TrimSpace(string(data)))
	if !wallet.ValidateMnemonic(mnemonic) {
		fail(fmt.Errorf("invalid mnemonic"))
	}

	network := config.Mainnet
	if len(os.Args) > 4 {
		network = config.NetworkType(os.Args[4])
	}
	params, err := config.ParamsFor(network)
	if err != nil {
		fail(err)
	}
	typ := address.P2WPKH
	if len(os.Args) > 3 {
		if typ, err = address.ParseType(os.Args[3]); err != nil {
			fail(err)
		}
	}
	var path types.KeyPath
	if len(os.Args) > 2 {
		path, err = types.ParseKeyPath(os.Args[2])
	} else {
		path, err = wallet.DefaultPath(typ, params.CoinType, 0, 0)
	}
	if err != nil {
		fail(err)
	}

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fail(err)
	}
	keys, err := wallet.NewKeyChain(seed)
	if err != nil {
		fail(err)
	}
	pub, err := keys.DerivePubKey(path)
	if err != nil {
		fail(err)
	}
	addr, err := address.NewCodec(params.Bitcoin).PubKeyToAddress(pub, typ)
	if err != nil {
		fail(err)
	}
	fmt.Printf("fingerprint=%s\n", keys.Fingerprint())
	fmt.Printf("path=%s\n", path.Display())
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	fmt.Printf("address=%s\n", addr)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
