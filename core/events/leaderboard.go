package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"gmboard/core/types"
	"gmboard/crypto"
)

const (
	TypeLeaderboardScoreRecorded   = "leaderboard.scoreRecorded"
	TypeLeaderboardEntryEvicted    = "leaderboard.entryEvicted"
	TypeLeaderboardAllowlistUpdate = "leaderboard.allowlistUpdated"
	TypeLeaderboardPauseUpdate     = "leaderboard.pauseUpdated"
)

// LeaderboardScoreRecorded is emitted when a submission changes the board,
// either by inserting a new wallet or raising an existing score.
type LeaderboardScoreRecorded struct {
	Wallet   [20]byte
	Caller   [20]byte
	Score    uint256.Int
	Previous uint256.Int
	Outcome  string
	Seq      uint64
}

func (LeaderboardScoreRecorded) EventType() string { return TypeLeaderboardScoreRecorded }

func (e LeaderboardScoreRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeLeaderboardScoreRecorded,
		Attributes: map[string]string{
			"wallet":   walletString(e.Wallet),
			"caller":   walletString(e.Caller),
			"score":    e.Score.Dec(),
			"previous": e.Previous.Dec(),
			"outcome":  e.Outcome,
			"seq":      strconv.FormatUint(e.Seq, 10),
		},
	}
}

// LeaderboardEntryEvicted is emitted when a full board drops its last-ranked
// entry to admit a higher new wallet.
type LeaderboardEntryEvicted struct {
	Wallet     [20]byte
	Score      uint256.Int
	ReplacedBy [20]byte
}

func (LeaderboardEntryEvicted) EventType() string { return TypeLeaderboardEntryEvicted }

func (e LeaderboardEntryEvicted) Event() *types.Event {
	return &types.Event{
		Type: TypeLeaderboardEntryEvicted,
		Attributes: map[string]string{
			"wallet":     walletString(e.Wallet),
			"score":      e.Score.Dec(),
			"replacedBy": walletString(e.ReplacedBy),
		},
	}
}

// LeaderboardAllowlistUpdated is emitted when the admin changes membership.
// Idempotent calls that leave membership untouched emit nothing.
type LeaderboardAllowlistUpdated struct {
	Wallet [20]byte
	Listed bool
	Admin  [20]byte
}

func (LeaderboardAllowlistUpdated) EventType() string { return TypeLeaderboardAllowlistUpdate }

func (e LeaderboardAllowlistUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeLeaderboardAllowlistUpdate,
		Attributes: map[string]string{
			"wallet": walletString(e.Wallet),
			"listed": strconv.FormatBool(e.Listed),
			"admin":  walletString(e.Admin),
		},
	}
}

// LeaderboardPauseUpdated is emitted whenever the pause flag flips.
type LeaderboardPauseUpdated struct {
	Paused bool
	Admin  [20]byte
}

func (LeaderboardPauseUpdated) EventType() string { return TypeLeaderboardPauseUpdate }

func (e LeaderboardPauseUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeLeaderboardPauseUpdate,
		Attributes: map[string]string{
			"paused": strconv.FormatBool(e.Paused),
			"admin":  walletString(e.Admin),
		},
	}
}

func walletString(wallet [20]byte) string {
	return crypto.WalletAddress(wallet).String()
}
