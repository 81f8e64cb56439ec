package leaderboard

import (
	"fmt"

	"github.com/holiman/uint256"
)

const stateVersion uint64 = 1

var stateKey = []byte("leaderboard/state")

// storage abstracts the persistence layer. Values are RLP encoded by the
// implementation.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedEntry struct {
	Wallet [20]byte
	Score  []byte
	Seq    uint64
}

// storedState is the full durable footprint of an engine.
type storedState struct {
	Version   uint64
	Admin     [20]byte
	MaxSize   uint64
	Paused    bool
	Seq       uint64
	Entries   []storedEntry
	Allowlist [][20]byte
}

// snapshotLocked encodes entries in heap order. Rank is derived from score and
// Seq, so restore re-heaps them without sorting.
func (e *Engine) snapshotLocked() *storedState {
	items := e.ranking.heap.items
	entries := make([]storedEntry, len(items))
	for i, item := range items {
		entries[i] = storedEntry{
			Wallet: item.Wallet,
			Score:  item.Score.Bytes(),
			Seq:    item.Seq,
		}
	}
	return &storedState{
		Version:   stateVersion,
		Admin:     e.access.Admin(),
		MaxSize:   e.params.MaxSize,
		Paused:    e.access.paused,
		Seq:       e.seq,
		Entries:   entries,
		Allowlist: e.access.Allowlist(),
	}
}

// restoreLocked replaces in-memory state with stored. The caller has already
// validated admin and capacity.
func (e *Engine) restoreLocked(stored *storedState) error {
	ranking := newRankingStore(int(e.params.MaxSize))
	for _, item := range stored.Entries {
		if len(item.Score) > 32 {
			return fmt.Errorf("%w: score for %x exceeds 256 bits", ErrCorruptState, item.Wallet)
		}
		if _, dup := ranking.get(item.Wallet); dup {
			return fmt.Errorf("%w: duplicate wallet %x", ErrCorruptState, item.Wallet)
		}
		entry := Entry{Wallet: item.Wallet, Seq: item.Seq}
		entry.Score.Set(new(uint256.Int).SetBytes(item.Score))
		ranking.insert(entry)
	}
	e.ranking = ranking
	e.seq = stored.Seq
	e.access.restore(stored.Paused, stored.Allowlist)
	return nil
}
