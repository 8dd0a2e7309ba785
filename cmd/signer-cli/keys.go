package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
)

var keysCmd = &cli.Command{
	Name:  "keys",
	Usage: "Manage device keys in the local keystore",
	Subcommands: []*cli.Command{
		keysCreate,
		keysImport,
		keysList,
		keysDelete,
	},
}

var keysCreate = &cli.Command{
	Name:      "create",
	Usage:     "Generate a new mnemonic and store its seed",
	ArgsUsage: "<name>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "bits",
			Usage: "Mnemonic entropy: 128 (12 words) or 256 (24 words)",
			Value: 256,
		},
	},
	Action: func(cctx *cli.Context) error {
		name := cctx.Args().First()
		if name == "" {
			return fmt.Errorf("key name required")
		}
		mnemonic, err := wallet.GenerateMnemonic(cctx.Int("bits"))
		if err != nil {
			return err
		}
		info, err := storeMnemonic(cctx, name, mnemonic)
		if err != nil {
			return err
		}

		fmt.Println("Write down this mnemonic. It is the only backup of the key.")
		fmt.Println()
		fmt.Println("  " + mnemonic)
		fmt.Println()
		fmt.Printf("Key %s created (%s, fingerprint %s)\n", info.Name, info.Network, info.Fingerprint)
		return nil
	},
}

var keysImport = &cli.Command{
	Name:      "import",
	Usage:     "Store the seed of an existing mnemonic",
	ArgsUsage: "<name>",
	Action: func(cctx *cli.Context) error {
		name := cctx.Args().First()
		if name == "" {
			return fmt.Errorf("key name required")
		}
		fmt.Fprint(os.Stderr, "Mnemonic: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read mnemonic: %w", err)
		}
		mnemonic := wallet.NormalizeMnemonic(strings.TrimSpace(line))
		if !wallet.ValidateMnemonic(mnemonic) {
			return fmt.Errorf("invalid mnemonic")
		}
		info, err := storeMnemonic(cctx, name, mnemonic)
		if err != nil {
			return err
		}
		fmt.Printf("Key %s imported (%s, fingerprint %s)\n", info.Name, info.Network, info.Fingerprint)
		return nil
	},
}

var keysList = &cli.Command{
	Name:  "list",
	Usage: "List stored keys",
	Action: func(cctx *cli.Context) error {
		ks, _, err := keystore(cctx)
		if err != nil {
			return err
		}
		names, err := ks.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No keys found.")
			return nil
		}
		for _, name := range names {
			info, err := ks.Info(name)
			if err != nil {
				fmt.Printf("  %-20s (unreadable: %v)\n", name, err)
				continue
			}
			fmt.Printf("  %-20s %-8s %s  %s\n", info.Name, info.Network, info.Fingerprint,
				info.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var keysDelete = &cli.Command{
	Name:      "delete",
	Usage:     "Delete a stored key",
	ArgsUsage: "<name>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "really-do-it", Usage: "Confirm deletion"},
	},
	Action: func(cctx *cli.Context) error {
		name := cctx.Args().First()
		if name == "" {
			return fmt.Errorf("key name required")
		}
		if !cctx.Bool("really-do-it") {
			return fmt.Errorf("pass --really-do-it to delete %s; make sure its mnemonic is backed up", name)
		}
		ks, _, err := keystore(cctx)
		if err != nil {
			return err
		}
		if err := ks.Delete(name); err != nil {
			return err
		}
		fmt.Printf("Key %s deleted\n", name)
		return nil
	},
}

func storeMnemonic(cctx *cli.Context, name, mnemonic string) (*wallet.KeyInfo, error) {
	ks, cfg, err := keystore(cctx)
	if err != nil {
		return nil, err
	}
	if ks.Exists(name) {
		return nil, fmt.Errorf("key %s already exists", name)
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer clear(seed)

	pw, err := readNewPassword()
	if err != nil {
		return nil, err
	}
	defer clear(pw)
	return ks.Create(name, string(cfg.Network), seed, pw, wallet.DefaultParams())
}
