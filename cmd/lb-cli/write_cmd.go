package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"gmboard/cmd/internal/passphrase"
	"gmboard/crypto"
)

var (
	nowFunc    = time.Now
	loadSigner = func(path string) (*crypto.PrivateKey, error) {
		return crypto.LoadSigningKey(path, passphrase.NewSource(passphrase.DefaultEnv).Get)
	}
)

// signParams adds the caller/timestamp/signature envelope to params. With a
// bearer token configured and no key the server resolves the caller from the
// token instead.
func signParams(keyPath, method string, params map[string]interface{}, fields ...string) error {
	keyPath = strings.TrimSpace(keyPath)
	if keyPath == "" {
		if strings.TrimSpace(rpcAuthToken) != "" {
			return nil
		}
		return errors.New("--key is required unless --token is set")
	}
	key, err := loadSigner(keyPath)
	if err != nil {
		return err
	}
	ts := nowFunc().Unix()
	sig, err := key.Sign(crypto.RequestDigest(method, ts, fields...))
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	params["caller"] = key.PubKey().Address().String()
	params["timestamp"] = ts
	params["signature"] = "0x" + hex.EncodeToString(sig)
	return nil
}

// normalizeScore returns the decimal form of a decimal or 0x hex score.
func normalizeScore(value string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return "", errors.New("score is required")
	}
	base := 10
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
		base = 16
	}
	parsed, ok := new(big.Int).SetString(trimmed, base)
	if !ok || parsed.Sign() < 0 {
		return "", fmt.Errorf("invalid score %q", value)
	}
	score, overflow := uint256.FromBig(parsed)
	if overflow {
		return "", errors.New("score exceeds 256 bits")
	}
	return score.Dec(), nil
}

func runSubmitCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var wallet, score, keyPath string
	fs.StringVar(&wallet, "wallet", "", "wallet receiving the score (bech32 or 0x hex)")
	fs.StringVar(&score, "score", "", "score as a decimal or 0x hex integer")
	fs.StringVar(&keyPath, "key", "", "signing key file (raw hex or keystore)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parsed, ok := requireWallet(stderr, wallet)
	if !ok {
		return 1
	}
	normalized, err := normalizeScore(score)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params := map[string]interface{}{"wallet": crypto.WalletField(parsed), "score": normalized}
	if err := signParams(keyPath, "lb_submitScore", params, crypto.WalletField(parsed), normalized); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return callAndPrint("lb_submitScore", params, stdout, stderr)
}

func runWhitelistCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: lb-cli whitelist add|remove|check --wallet <addr> [--key <file>]")
		return 1
	}
	var method string
	switch args[0] {
	case "add":
		method = "lb_addToWhitelist"
	case "remove":
		method = "lb_removeFromWhitelist"
	case "check":
		method = "lb_isWhitelisted"
	default:
		fmt.Fprintf(stderr, "Unknown whitelist subcommand: %s\n", args[0])
		return 1
	}
	fs := flag.NewFlagSet("whitelist "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	var wallet, keyPath string
	fs.StringVar(&wallet, "wallet", "", "wallet to update (bech32 or 0x hex)")
	fs.StringVar(&keyPath, "key", "", "admin signing key file")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	parsed, ok := requireWallet(stderr, wallet)
	if !ok {
		return 1
	}
	params := map[string]interface{}{"wallet": crypto.WalletField(parsed)}
	if method != "lb_isWhitelisted" {
		if err := signParams(keyPath, method, params, crypto.WalletField(parsed)); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	return callAndPrint(method, params, stdout, stderr)
}

func runPauseCommand(args []string, paused bool, stdout, stderr io.Writer) int {
	name := "unpause"
	if paused {
		name = "pause"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath string
	fs.StringVar(&keyPath, "key", "", "admin signing key file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	params := map[string]interface{}{"paused": paused}
	if err := signParams(keyPath, "lb_pauseSubmissions", params, strconv.FormatBool(paused)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return callAndPrint("lb_pauseSubmissions", params, stdout, stderr)
}

func callAndPrint(method string, params map[string]interface{}, stdout, stderr io.Writer) int {
	result, rpcErr, err := rpcCall(method, []interface{}{params})
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}
