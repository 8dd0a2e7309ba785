// stBTC withdrawal signer daemon.
//
// Usage:
//
//	signerd [--key=device --chunk-source=rpc --chunk-rpc=...]  Run signer
//	signerd --help                                            Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/stbtc-signer/config"
	"github.com/Klingon-tech/stbtc-signer/internal/node"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg, node.WithPassword(promptPassword))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}

// promptPassword asks for the keystore password on the controlling terminal.
func promptPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal; set wallet.passwordfile")
	}
	fmt.Fprint(os.Stderr, "Keystore password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return pw, err
}
