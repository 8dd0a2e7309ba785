// signer-cli is a command-line client for signerd: key management, chunk
// hosting and withdrawal requests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/Klingon-tech/stbtc-signer/config"
	"github.com/Klingon-tech/stbtc-signer/internal/rpcclient"
	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
)

func main() {
	app := &cli.App{
		Name:    "signer-cli",
		Usage:   "Manage an stBTC withdrawal signer",
		Version: config.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "rpc",
				Usage: "signerd RPC endpoint (default: the network's local endpoint)",
			},
			&cli.StringFlag{
				Name:  "datadir",
				Usage: "Data directory",
				Value: config.DefaultDataDir(),
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "mainnet or testnet",
				Value: string(config.Mainnet),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "RPC timeout; withdraw sign waits for the device holder",
				Value: 10 * time.Minute,
			},
		},
		Commands: []*cli.Command{
			keysCmd,
			addressCmd,
			infoCmd,
			chunksCmd,
			withdrawCmd,
			peersCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func network(cctx *cli.Context) (config.NetworkType, error) {
	switch n := config.NetworkType(cctx.String("network")); n {
	case config.Mainnet, config.Testnet:
		return n, nil
	default:
		return "", fmt.Errorf("unknown network %q", n)
	}
}

// localConfig returns the default config of the selected network rooted at
// --datadir. It locates the keystore and the default RPC port.
func localConfig(cctx *cli.Context) (*config.Config, error) {
	n, err := network(cctx)
	if err != nil {
		return nil, err
	}
	cfg := config.Default(n)
	cfg.DataDir = cctx.String("datadir")
	return cfg, nil
}

func rpcClient(cctx *cli.Context) (*rpcclient.Client, error) {
	url := cctx.String("rpc")
	if url == "" {
		cfg, err := localConfig(cctx)
		if err != nil {
			return nil, err
		}
		url = "http://" + net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
	}
	return rpcclient.NewWithTimeout(url, cctx.Duration("timeout")), nil
}

func keystore(cctx *cli.Context) (*wallet.Keystore, *config.Config, error) {
	cfg, err := localConfig(cctx)
	if err != nil {
		return nil, nil, err
	}
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return nil, nil, err
	}
	return ks, cfg, nil
}

func reqContext(cctx *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cctx.Context, cctx.Duration("timeout"))
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return password, nil
}

// readNewPassword asks twice and requires both entries to match.
func readNewPassword() ([]byte, error) {
	pw, err := readPassword("New keystore password: ")
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, fmt.Errorf("empty password")
	}
	again, err := readPassword("Repeat password: ")
	if err != nil {
		return nil, err
	}
	if string(pw) != string(again) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return pw, nil
}
