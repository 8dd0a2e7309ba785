package main

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Klingon-tech/stbtc-signer/internal/rpc"
	"github.com/Klingon-tech/stbtc-signer/internal/withdraw"
	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

var withdrawCmd = &cli.Command{
	Name:  "withdraw",
	Usage: "Inspect and sign withdrawal payloads",
	Subcommands: []*cli.Command{
		withdrawInspect,
		withdrawSign,
	},
}

var payloadFlags = []cli.Flag{
	&cli.StringFlag{Name: "root", Usage: "Payload Merkle root", Required: true},
	&cli.Uint64Flag{Name: "count", Usage: "Chunk count (0 = look up on the signer's store)"},
}

var withdrawInspect = &cli.Command{
	Name:  "inspect",
	Usage: "Decode a stored payload and show the digest a signer would sign",
	Flags: payloadFlags,
	Action: func(cctx *cli.Context) error {
		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()
		var res rpc.DecodeResult
		err = client.CallContext(ctx, "withdraw_decode", rpc.DecodeParam{
			Root:  cctx.String("root"),
			Count: cctx.Uint64("count"),
		}, &res)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var withdrawSign = &cli.Command{
	Name:  "sign",
	Usage: "Ask the signer to sign a withdrawal; the device holder confirms it",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "path", Usage: "Key path of the redeemer key, e.g. m/84'/0'/0'/0/0", Required: true},
		&cli.BoolFlag{Name: "verify", Usage: "Recover the signer key from the signature and compare", Value: true},
	}, payloadFlags...),
	Action: func(cctx *cli.Context) error {
		path, err := types.ParseKeyPath(cctx.String("path"))
		if err != nil {
			return err
		}
		root, err := types.HexToHash(cctx.String("root"))
		if err != nil {
			return fmt.Errorf("root: %w", err)
		}
		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()

		count := cctx.Uint64("count")
		if count == 0 {
			var info rpc.PayloadResult
			if err := client.CallContext(ctx, "chunk_info", rpc.RootParam{Root: root.String()}, &info); err != nil {
				return err
			}
			count = info.Count
		}

		fmt.Println("Waiting for the device holder to confirm...")
		res, err := client.SignWithdrawal(ctx, path, root, count)
		if err != nil {
			return err
		}
		if res.Signature == "" {
			return fmt.Errorf("signer refused: status %s (%s)", res.Status, res.Class)
		}
		fmt.Printf("Status:    %s\n", res.Status)
		fmt.Printf("Signature: %s\n", res.Signature)

		if !cctx.Bool("verify") {
			return nil
		}
		var decoded rpc.DecodeResult
		if err := client.CallContext(ctx, "withdraw_decode", rpc.DecodeParam{Root: root.String(), Count: count}, &decoded); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		var addr rpc.AddressResult
		if err := client.CallContext(ctx, "signer_getAddress", rpc.AddressParam{Path: path.String(), Type: "p2wpkh"}, &addr); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if err := verifySignature(res.Signature, decoded.Digest, addr.PubKey); err != nil {
			return err
		}
		fmt.Println("Signature verified against the signer key.")
		return nil
	},
}

var addressCmd = &cli.Command{
	Name:  "address",
	Usage: "Show the signer's address for a key path",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "type", Usage: "p2pkh, p2wpkh or p2tr", Value: "p2wpkh"},
		&cli.StringFlag{Name: "path", Usage: "Explicit key path (overrides account and index)"},
		&cli.UintFlag{Name: "account", Usage: "Account of the standard path"},
		&cli.UintFlag{Name: "index", Usage: "Address index of the standard path"},
	},
	Action: func(cctx *cli.Context) error {
		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()
		var res rpc.AddressResult
		err = client.CallContext(ctx, "signer_getAddress", rpc.AddressParam{
			Path:    cctx.String("path"),
			Type:    cctx.String("type"),
			Account: uint32(cctx.Uint("account")),
			Index:   uint32(cctx.Uint("index")),
		}, &res)
		if err != nil {
			return err
		}
		fmt.Printf("Address: %s\n", res.Address)
		fmt.Printf("Path:    %s\n", res.Path)
		fmt.Printf("PubKey:  %s\n", res.PubKey)
		return nil
	},
}

var infoCmd = &cli.Command{
	Name:  "info",
	Usage: "Show signer status",
	Action: func(cctx *cli.Context) error {
		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()
		var res rpc.SignerInfoResult
		if err := client.CallContext(ctx, "signer_info", nil, &res); err != nil {
			return err
		}
		return printJSON(res)
	},
}

var peersCmd = &cli.Command{
	Name:  "peers",
	Usage: "Show the signer's libp2p identity and peer count",
	Action: func(cctx *cli.Context) error {
		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()
		var res rpc.NodeInfoResult
		if err := client.CallContext(ctx, "net_getNodeInfo", nil, &res); err != nil {
			return err
		}
		return printJSON(res)
	},
}

// verifySignature checks that sigHex recovers to pubKeyHex over the
// message hash of digestHex.
func verifySignature(sigHex, digestHex, pubKeyHex string) error {
	sig, err := hex.DecodeString(trimHex(sigHex))
	if err != nil {
		return fmt.Errorf("signature hex: %w", err)
	}
	want, err := hex.DecodeString(trimHex(pubKeyHex))
	if err != nil {
		return fmt.Errorf("pubkey hex: %w", err)
	}
	msg, err := withdraw.MessageDigest([]byte(digestHex))
	if err != nil {
		return err
	}
	got, err := crypto.RecoverCompact(sig, msg[:])
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("signature recovers to %x, signer key is %x", got, want)
	}
	return nil
}

func trimHex(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
