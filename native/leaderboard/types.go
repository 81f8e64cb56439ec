package leaderboard

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	moduleName = "leaderboard"

	// DefaultMaxSize is the capacity used when none is configured.
	DefaultMaxSize uint64 = 1000
	// MaxAllowedSize bounds the configurable capacity.
	MaxAllowedSize uint64 = 100_000
)

// Entry is one wallet's best recorded score. Seq is the engine sequence number
// of the mutation that set the current score and orders equal scores.
type Entry struct {
	Wallet [20]byte
	Score  uint256.Int
	Seq    uint64
}

// RankedEntry pairs an entry with its 1-based position on the board.
type RankedEntry struct {
	Rank int
	Entry
}

// Outcome describes what a submission did to the board.
type Outcome string

const (
	// OutcomeInserted means a new wallet took a free slot.
	OutcomeInserted Outcome = "inserted"
	// OutcomeUpdated means an existing wallet raised its score.
	OutcomeUpdated Outcome = "updated"
	// OutcomeReplaced means a new wallet evicted the last-ranked entry.
	OutcomeReplaced Outcome = "replaced"
	// OutcomeUnchanged means the wallet already holds an equal or higher score.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeBelowMinimum means the board is full and the score does not beat
	// the current minimum.
	OutcomeBelowMinimum Outcome = "belowMinimum"
)

// Changed reports whether the outcome mutated the board.
func (o Outcome) Changed() bool {
	switch o {
	case OutcomeInserted, OutcomeUpdated, OutcomeReplaced:
		return true
	default:
		return false
	}
}

// SubmitResult reports the effect of a successful submission. Silent no-ops
// are successes with an unchanged outcome.
type SubmitResult struct {
	Outcome  Outcome
	Previous uint256.Int
	Evicted  *Entry
}

// GatingMode selects which identity the allowlist is checked against.
type GatingMode string

const (
	// GatingDisabled never consults the allowlist.
	GatingDisabled GatingMode = "disabled"
	// GatingOpen enforces the allowlist against the submitted wallet only
	// while the allowlist is non-empty.
	GatingOpen GatingMode = "open"
	// GatingWallet requires the submitted wallet to be allowlisted.
	GatingWallet GatingMode = "wallet"
	// GatingCaller requires the submitting caller to be allowlisted.
	GatingCaller GatingMode = "caller"
)

// Params configures an engine instance.
type Params struct {
	MaxSize uint64
	Gating  GatingMode
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{MaxSize: DefaultMaxSize, Gating: GatingWallet}
}

// Validate ensures the parameters are usable.
func (p Params) Validate() error {
	if p.MaxSize == 0 {
		return fmt.Errorf("%w: max size must be positive", ErrInvalidParams)
	}
	if p.MaxSize > MaxAllowedSize {
		return fmt.Errorf("%w: max size must be <= %d", ErrInvalidParams, MaxAllowedSize)
	}
	switch p.Gating {
	case GatingDisabled, GatingOpen, GatingWallet, GatingCaller:
	default:
		return fmt.Errorf("%w: unsupported gating mode %q", ErrInvalidParams, p.Gating)
	}
	return nil
}

// Status summarises the engine for operators.
type Status struct {
	Admin          [20]byte
	Paused         bool
	MaxSize        uint64
	Length         int
	Gating         GatingMode
	AllowlistSize  int
	MinScore       uint256.Int
	HasMinimum     bool
	SequenceNumber uint64
}
