package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gmboard/cmd/internal/passphrase"
	"gmboard/crypto"
)

var keystorePassphrase = func() (string, error) {
	return passphrase.NewSource(passphrase.DefaultEnv).Get()
}

func runGenerateKeyCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out string
	var keystore, force bool
	fs.StringVar(&out, "out", "wallet.key", "where to write the key")
	fs.BoolVar(&keystore, "keystore", false, "encrypt the key as a v3 keystore (passphrase from "+passphrase.DefaultEnv+" or prompt)")
	fs.BoolVar(&force, "force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	out = strings.TrimSpace(out)
	if out == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	if _, err := os.Stat(out); err == nil && !force {
		fmt.Fprintf(stderr, "Error: %s already exists; pass --force to overwrite\n", out)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if keystore {
		secret, err := keystorePassphrase()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		err = crypto.SaveToKeystore(out, key, secret)
	} else {
		err = crypto.SaveRawKey(out, key)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: save key: %v\n", err)
		return 1
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(stdout, "Wallet: %s\nHex:    %s\nKey:    %s\n", addr.String(), addr.Hex(), out)
	return 0
}
