package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Klingon-tech/stbtc-signer/internal/rpc"
)

var chunksCmd = &cli.Command{
	Name:  "chunks",
	Usage: "Host withdrawal payloads on the signer's chunk store",
	Subcommands: []*cli.Command{
		chunksPut,
		chunksInfo,
		chunksList,
		chunksDelete,
	},
}

var chunksPut = &cli.Command{
	Name:      "put",
	Usage:     "Upload a withdrawal payload",
	ArgsUsage: "<file | hex>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "hex", Usage: "Treat the argument as hex data instead of a file"},
	},
	Action: func(cctx *cli.Context) error {
		arg := cctx.Args().First()
		if arg == "" {
			return fmt.Errorf("payload required")
		}
		var data []byte
		var err error
		if cctx.Bool("hex") {
			data, err = hex.DecodeString(strings.TrimPrefix(arg, "0x"))
		} else {
			data, err = os.ReadFile(arg)
		}
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}

		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()
		res, err := client.PutPayload(ctx, data)
		if err != nil {
			return err
		}
		fmt.Printf("Root:   %s\n", res.Root)
		fmt.Printf("Chunks: %d\n", res.Count)
		return nil
	},
}

var chunksInfo = &cli.Command{
	Name:      "info",
	Usage:     "Show the chunk count of a stored payload",
	ArgsUsage: "<root>",
	Action: func(cctx *cli.Context) error {
		root := cctx.Args().First()
		if root == "" {
			return fmt.Errorf("root required")
		}
		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()
		var res rpc.PayloadResult
		if err := client.CallContext(ctx, "chunk_info", rpc.RootParam{Root: root}, &res); err != nil {
			return err
		}
		return printJSON(res)
	},
}

var chunksList = &cli.Command{
	Name:  "list",
	Usage: "List stored payloads",
	Action: func(cctx *cli.Context) error {
		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()
		var res []rpc.PayloadResult
		if err := client.CallContext(ctx, "chunk_list", nil, &res); err != nil {
			return err
		}
		if len(res) == 0 {
			fmt.Println("No payloads stored.")
			return nil
		}
		for _, p := range res {
			fmt.Printf("  %s  %d chunks\n", p.Root, p.Count)
		}
		return nil
	},
}

var chunksDelete = &cli.Command{
	Name:      "delete",
	Usage:     "Remove a stored payload",
	ArgsUsage: "<root>",
	Action: func(cctx *cli.Context) error {
		root := cctx.Args().First()
		if root == "" {
			return fmt.Errorf("root required")
		}
		client, err := rpcClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := reqContext(cctx)
		defer cancel()
		var ok bool
		if err := client.CallContext(ctx, "chunk_delete", rpc.RootParam{Root: root}, &ok); err != nil {
			return err
		}
		fmt.Printf("Payload %s deleted\n", root)
		return nil
	},
}
