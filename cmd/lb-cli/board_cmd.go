package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gmboard/crypto"
)

type boardEntry struct {
	Rank    int    `json:"rank"`
	Wallet  string `json:"wallet"`
	Address string `json:"address"`
	Score   string `json:"score"`
}

func fetchBoard(limit int) ([]boardEntry, *rpcError, error) {
	var params []interface{}
	if limit > 0 {
		params = []interface{}{map[string]int{"limit": limit}}
	}
	result, rpcErr, err := rpcCall("lb_getLeaderboard", params)
	if err != nil || rpcErr != nil {
		return nil, rpcErr, err
	}
	var entries []boardEntry
	if len(result) > 0 && string(result) != "null" {
		if err := json.Unmarshal(result, &entries); err != nil {
			return nil, nil, fmt.Errorf("decode leaderboard: %w", err)
		}
	}
	return entries, nil, nil
}

func runBoardCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var limit int
	var asJSON bool
	fs.IntVar(&limit, "limit", 0, "maximum number of rows (0 for all)")
	fs.BoolVar(&asJSON, "json", false, "print raw JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if limit < 0 {
		fmt.Fprintln(stderr, "Error: --limit must not be negative")
		return 1
	}
	entries, rpcErr, err := fetchBoard(limit)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	if asJSON {
		encoded, _ := json.Marshal(entries)
		writeRPCResult(stdout, encoded)
		return 0
	}
	renderBoard(stdout, entries)
	return 0
}

func renderBoard(w io.Writer, entries []boardEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Leaderboard is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tWALLET\tSCORE")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", entry.Rank, entry.Wallet, entry.Score)
	}
	_ = tw.Flush()
}

func runLengthCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: length takes no arguments")
		return 1
	}
	result, rpcErr, err := rpcCall("lb_getLeaderboardLength", nil)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runStatusCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: status takes no arguments")
		return 1
	}
	result, rpcErr, err := rpcCall("lb_status", nil)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runEntryCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("entry", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var wallet string
	fs.StringVar(&wallet, "wallet", "", "wallet to look up (bech32 or 0x hex)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parsed, ok := requireWallet(stderr, wallet)
	if !ok {
		return 1
	}
	result, rpcErr, err := rpcCall("lb_getEntry", []interface{}{map[string]string{"wallet": crypto.WalletField(parsed)}})
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	if len(result) == 0 || string(result) == "null" {
		fmt.Fprintf(stdout, "%s is not on the leaderboard\n", crypto.WalletAddress(parsed).String())
		return 0
	}
	writeRPCResult(stdout, result)
	return 0
}

func runHistoryCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var wallet string
	var limit int
	fs.StringVar(&wallet, "wallet", "", "only show events for this wallet")
	fs.IntVar(&limit, "limit", 0, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	params := map[string]interface{}{}
	if strings.TrimSpace(wallet) != "" {
		parsed, ok := requireWallet(stderr, wallet)
		if !ok {
			return 1
		}
		params["wallet"] = crypto.WalletField(parsed)
	}
	if limit > 0 {
		params["limit"] = limit
	}
	result, rpcErr, err := rpcCall("lb_history", []interface{}{params})
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func requireWallet(stderr io.Writer, value string) ([20]byte, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		fmt.Fprintln(stderr, "Error: --wallet is required")
		return [20]byte{}, false
	}
	wallet, err := crypto.ParseWallet(trimmed)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid wallet: %v\n", err)
		return [20]byte{}, false
	}
	return wallet, true
}
