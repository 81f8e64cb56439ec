package rpc

import (
	"encoding/json"
	"time"

	"gmboard/crypto"
	"gmboard/native/leaderboard"
	"gmboard/services/journal"
)

// authEnvelope carries a signed proof of the caller's wallet. It is embedded
// in the parameter object of every mutating method.
type authEnvelope struct {
	Caller    string `json:"caller,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type walletParams struct {
	Wallet string `json:"wallet"`
}

type submitScoreParams struct {
	Wallet string          `json:"wallet"`
	Score  json.RawMessage `json:"score"`
	authEnvelope
}

type allowlistParams struct {
	Wallet string `json:"wallet"`
	authEnvelope
}

type pauseParams struct {
	Paused *bool `json:"paused"`
	authEnvelope
}

type historyParams struct {
	Wallet string `json:"wallet,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// EntryResult is one row of the board.
type EntryResult struct {
	Rank    int    `json:"rank,omitempty"`
	Wallet  string `json:"wallet"`
	Address string `json:"address"`
	Score   string `json:"score"`
}

// SubmitScoreResult reports what a submission did.
type SubmitScoreResult struct {
	Outcome  string       `json:"outcome"`
	Changed  bool         `json:"changed"`
	Previous string       `json:"previous,omitempty"`
	Evicted  *EntryResult `json:"evicted,omitempty"`
}

// StatusResult summarises the engine for operators.
type StatusResult struct {
	Admin         string  `json:"admin"`
	AdminAddress  string  `json:"adminAddress"`
	Paused        bool    `json:"paused"`
	MaxSize       uint64  `json:"maxSize"`
	Length        int     `json:"length"`
	Gating        string  `json:"gating"`
	AllowlistSize int     `json:"allowlistSize"`
	MinScore      *string `json:"minScore,omitempty"`
	Sequence      uint64  `json:"sequence"`
}

// HistoryRecord is a journal row as served over RPC.
type HistoryRecord struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Wallet     string            `json:"wallet,omitempty"`
	Score      string            `json:"score,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	Attributes map[string]string `json:"attributes"`
	Digest     string            `json:"digest"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func entryResult(entry leaderboard.Entry, rank int) EntryResult {
	return EntryResult{
		Rank:    rank,
		Wallet:  crypto.WalletAddress(entry.Wallet).String(),
		Address: crypto.WalletField(entry.Wallet),
		Score:   entry.Score.Dec(),
	}
}

func statusResult(status leaderboard.Status) StatusResult {
	out := StatusResult{
		Admin:         crypto.WalletAddress(status.Admin).String(),
		AdminAddress:  crypto.WalletField(status.Admin),
		Paused:        status.Paused,
		MaxSize:       status.MaxSize,
		Length:        status.Length,
		Gating:        string(status.Gating),
		AllowlistSize: status.AllowlistSize,
		Sequence:      status.SequenceNumber,
	}
	if status.HasMinimum {
		min := status.MinScore.Dec()
		out.MinScore = &min
	}
	return out
}

func historyRecord(record journal.Record) HistoryRecord {
	attrs := map[string]string{}
	_ = json.Unmarshal([]byte(record.Attributes), &attrs)
	return HistoryRecord{
		ID:         record.ID.String(),
		Type:       record.Type,
		Wallet:     record.Wallet,
		Score:      record.Score,
		Outcome:    record.Outcome,
		Attributes: attrs,
		Digest:     record.Digest,
		CreatedAt:  record.CreatedAt,
	}
}
