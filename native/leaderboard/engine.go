package leaderboard

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"gmboard/core/events"
)

// Options configures Open.
type Options struct {
	Admin  [20]byte
	Params Params
	// Store persists state after every mutation. Nil keeps state in memory.
	Store storage
	// Seed is allowlisted on first initialisation only.
	Seed [][20]byte
}

// Engine is the leaderboard state machine. Every mutation runs under one lock
// and either fully applies (including persistence) or leaves state untouched.
// Events are delivered after the lock is released, in commit order.
type Engine struct {
	mu      sync.RWMutex
	params  Params
	access  *AccessController
	ranking *rankingStore
	seq     uint64
	store   storage

	// pendingMu guards pending and emitter; emitMu serialises delivery.
	pendingMu sync.Mutex
	pending   []events.Event
	emitter   events.Emitter
	emitMu    sync.Mutex
}

// NewEngine constructs an in-memory engine owned by admin.
func NewEngine(admin [20]byte, params Params) (*Engine, error) {
	return Open(Options{Admin: admin, Params: params})
}

// Open restores the engine from opts.Store, or initialises fresh state when
// nothing has been stored yet.
func Open(opts Options) (*Engine, error) {
	params := opts.Params
	if params.Gating == "" {
		params.Gating = GatingWallet
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	access, err := NewAccessController(opts.Admin, params.Gating)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		params:  params,
		access:  access,
		ranking: newRankingStore(int(params.MaxSize)),
		store:   opts.Store,
		emitter: events.NoopEmitter{},
	}
	if e.store == nil {
		for _, wallet := range opts.Seed {
			if _, err := e.access.Add(opts.Admin, wallet); err != nil {
				return nil, fmt.Errorf("seed allowlist: %w", err)
			}
		}
		return e, nil
	}

	var stored storedState
	found, err := e.store.KVGet(stateKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard state: %w", err)
	}
	if !found {
		for _, wallet := range opts.Seed {
			if _, err := e.access.Add(opts.Admin, wallet); err != nil {
				return nil, fmt.Errorf("seed allowlist: %w", err)
			}
		}
		if err := e.store.KVPut(stateKey, e.snapshotLocked()); err != nil {
			return nil, fmt.Errorf("persist initial state: %w", err)
		}
		return e, nil
	}
	if stored.Version != stateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptState, stored.Version)
	}
	if stored.Admin != opts.Admin {
		return nil, fmt.Errorf("%w: stored %x, configured %x", ErrAdminMismatch, stored.Admin, opts.Admin)
	}
	if uint64(len(stored.Entries)) > params.MaxSize {
		return nil, fmt.Errorf("%w: %d entries, max size %d", ErrCapacityMismatch, len(stored.Entries), params.MaxSize)
	}
	if err := e.restoreLocked(&stored); err != nil {
		return nil, err
	}
	return e, nil
}

// SetEmitter configures the event emitter used to broadcast state changes.
// Passing nil resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// queueLocked records events of a committed mutation for delivery once the
// state lock is released.
func (e *Engine) queueLocked(evts ...events.Event) {
	e.pendingMu.Lock()
	e.pending = append(e.pending, evts...)
	e.pendingMu.Unlock()
}

// flushEvents delivers queued events without holding the state lock, so a
// slow emitter never blocks readers. By the time it returns, every event
// queued before the call has been delivered.
func (e *Engine) flushEvents() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	for {
		e.pendingMu.Lock()
		batch := e.pending
		e.pending = nil
		emitter := e.emitter
		e.pendingMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, evt := range batch {
			emitter.Emit(evt)
		}
	}
}

// commitLocked persists the post-mutation state. On failure undo reverts the
// in-memory mutation so the call has no effect.
func (e *Engine) commitLocked(undo func()) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.KVPut(stateKey, e.snapshotLocked()); err != nil {
		undo()
		return fmt.Errorf("persist leaderboard state: %w", err)
	}
	return nil
}

// SubmitScore records score for wallet on behalf of caller. Authorization
// failures, including submissions while paused, return ErrUnauthorized before
// the wallet is validated. Submissions that would not improve the board
// succeed without changing state.
func (e *Engine) SubmitScore(caller, wallet [20]byte, score *uint256.Int) (SubmitResult, error) {
	if score == nil {
		return SubmitResult{}, ErrInvalidScore
	}
	result, err := e.submit(caller, wallet, score)
	e.flushEvents()
	return result, err
}

func (e *Engine) submit(caller, wallet [20]byte, score *uint256.Int) (SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.access.Authorize(caller, wallet); err != nil {
		return SubmitResult{}, err
	}
	existing, present := e.ranking.get(wallet)
	if present && !score.Gt(&existing.Score) {
		return SubmitResult{Outcome: OutcomeUnchanged, Previous: existing.Score}, nil
	}
	if !present && e.ranking.full() {
		if lowest, ok := e.ranking.min(); ok && !score.Gt(&lowest.Score) {
			return SubmitResult{Outcome: OutcomeBelowMinimum}, nil
		}
	}

	var prior *Entry
	if present {
		copied := *existing
		prior = &copied
	}
	seq := e.seq + 1
	result := e.ranking.apply(wallet, score, seq)
	e.seq = seq
	undo := func() {
		e.ranking.revert(wallet, result, prior)
		e.seq = seq - 1
	}
	if err := e.commitLocked(undo); err != nil {
		return SubmitResult{}, err
	}
	if result.Evicted != nil {
		e.queueLocked(events.LeaderboardEntryEvicted{
			Wallet:     result.Evicted.Wallet,
			Score:      result.Evicted.Score,
			ReplacedBy: wallet,
		})
	}
	recorded := events.LeaderboardScoreRecorded{
		Wallet:   wallet,
		Caller:   caller,
		Previous: result.Previous,
		Outcome:  string(result.Outcome),
		Seq:      seq,
	}
	recorded.Score.Set(score)
	e.queueLocked(recorded)
	return result, nil
}

// AddToWhitelist allowlists wallet. Only the admin may call it; adding a
// listed wallet is a no-op.
func (e *Engine) AddToWhitelist(caller, wallet [20]byte) error {
	defer e.flushEvents()
	e.mu.Lock()
	defer e.mu.Unlock()
	changed, err := e.access.Add(caller, wallet)
	if err != nil || !changed {
		return err
	}
	if err := e.commitLocked(func() { _, _ = e.access.Remove(caller, wallet) }); err != nil {
		return err
	}
	e.queueLocked(events.LeaderboardAllowlistUpdated{Wallet: wallet, Listed: true, Admin: caller})
	return nil
}

// RemoveFromWhitelist removes wallet from the allowlist. Entries already on the
// board are kept. Only the admin may call it; removing an unlisted wallet is a
// no-op.
func (e *Engine) RemoveFromWhitelist(caller, wallet [20]byte) error {
	defer e.flushEvents()
	e.mu.Lock()
	defer e.mu.Unlock()
	changed, err := e.access.Remove(caller, wallet)
	if err != nil || !changed {
		return err
	}
	if err := e.commitLocked(func() { _, _ = e.access.Add(caller, wallet) }); err != nil {
		return err
	}
	e.queueLocked(events.LeaderboardAllowlistUpdated{Wallet: wallet, Listed: false, Admin: caller})
	return nil
}

// PauseSubmissions sets the global pause flag. Only the admin may call it.
func (e *Engine) PauseSubmissions(caller [20]byte, paused bool) error {
	defer e.flushEvents()
	e.mu.Lock()
	defer e.mu.Unlock()
	changed, err := e.access.SetPaused(caller, paused)
	if err != nil || !changed {
		return err
	}
	if err := e.commitLocked(func() { _, _ = e.access.SetPaused(caller, !paused) }); err != nil {
		return err
	}
	e.queueLocked(events.LeaderboardPauseUpdated{Paused: paused, Admin: caller})
	return nil
}

// IsWhitelisted reports allowlist membership.
func (e *Engine) IsWhitelisted(wallet [20]byte) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.access.IsWhitelisted(wallet)
}

// Paused reports whether submissions are paused.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.access.IsPaused(moduleName)
}

// Admin returns the engine's admin identity.
func (e *Engine) Admin() [20]byte {
	return e.access.Admin()
}

// GetLeaderboard returns a copy of every entry, highest score first. Equal
// scores are ordered by who reached them first.
func (e *Engine) GetLeaderboard() []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ranking.ranked()
}

// GetLeaderboardLength returns the number of entries on the board.
func (e *Engine) GetLeaderboardLength() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ranking.len()
}

// Entry returns wallet's entry and rank.
func (e *Engine) Entry(wallet [20]byte) (RankedEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.ranking.get(wallet)
	if !ok {
		return RankedEntry{}, false
	}
	rank, _ := e.ranking.rankOf(wallet)
	return RankedEntry{Rank: rank, Entry: *entry}, true
}

// Status returns an operator summary of the engine.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	status := Status{
		Admin:          e.access.Admin(),
		Paused:         e.access.IsPaused(moduleName),
		MaxSize:        e.params.MaxSize,
		Length:         e.ranking.len(),
		Gating:         e.access.Gating(),
		AllowlistSize:  e.access.Len(),
		SequenceNumber: e.seq,
	}
	if lowest, ok := e.ranking.min(); ok {
		status.MinScore = lowest.Score
		status.HasMinimum = true
	}
	return status
}
