package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Defaults to localhost; overridden by GMBOARD_RPC_URL or --rpc.
var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("GMBOARD_RPC_TOKEN")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	rest := args[1:]
	switch args[0] {
	case "board":
		return runBoardCommand(rest, stdout, stderr)
	case "length":
		return runLengthCommand(rest, stdout, stderr)
	case "status":
		return runStatusCommand(rest, stdout, stderr)
	case "entry":
		return runEntryCommand(rest, stdout, stderr)
	case "history":
		return runHistoryCommand(rest, stdout, stderr)
	case "submit":
		return runSubmitCommand(rest, stdout, stderr)
	case "whitelist":
		return runWhitelistCommand(rest, stdout, stderr)
	case "pause":
		return runPauseCommand(rest, true, stdout, stderr)
	case "unpause":
		return runPauseCommand(rest, false, stdout, stderr)
	case "export":
		return runExportCommand(rest, stdout, stderr)
	case "generate-key":
		return runGenerateKeyCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("GMBOARD_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545"
}

// applyGlobalFlags strips --rpc and --token from args.
func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				rpcEndpoint = args[i+1]
			} else {
				rpcAuthToken = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--token="):
			rpcAuthToken = strings.TrimPrefix(arg, "--token=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  lb-cli [--rpc URL] [--token JWT] <command> [flags]

Read commands:
  board         Print the ranked leaderboard
  length        Print the number of entries
  status        Print engine status
  entry         Show one wallet's entry and rank
  history       Show journaled events (optionally for one wallet)
  export        Write a leaderboard snapshot as parquet or csv

Write commands (signed with --key unless --token is set):
  submit        Submit a score for a wallet
  whitelist     add|remove|check a wallet on the allowlist
  pause         Pause score submissions (admin)
  unpause       Resume score submissions (admin)

Keys:
  generate-key  Create a wallet key file`)
}
