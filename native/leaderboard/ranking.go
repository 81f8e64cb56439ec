package leaderboard

import (
	"container/heap"
	"sort"

	"github.com/holiman/uint256"
)

// ranksAbove reports whether a is ranked ahead of b: higher score first, and
// for equal scores the one that reached it earlier (lower Seq).
func ranksAbove(a, b *Entry) bool {
	if c := a.Score.Cmp(&b.Score); c != 0 {
		return c > 0
	}
	return a.Seq < b.Seq
}

// entryHeap is a min-heap whose root is the last-ranked entry. index maps each
// wallet to its current heap slot.
type entryHeap struct {
	items []*Entry
	index map[[20]byte]int
}

func (h *entryHeap) Len() int { return len(h.items) }

func (h *entryHeap) Less(i, j int) bool { return ranksAbove(h.items[j], h.items[i]) }

func (h *entryHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].Wallet] = i
	h.index[h.items[j].Wallet] = j
}

func (h *entryHeap) Push(x any) {
	entry := x.(*Entry)
	h.index[entry.Wallet] = len(h.items)
	h.items = append(h.items, entry)
}

func (h *entryHeap) Pop() any {
	last := len(h.items) - 1
	entry := h.items[last]
	h.items[last] = nil
	h.items = h.items[:last]
	delete(h.index, entry.Wallet)
	return entry
}

// rankingStore is the capacity-bounded top-K registry. It knows nothing about
// access control.
type rankingStore struct {
	maxSize int
	heap    entryHeap
}

func newRankingStore(maxSize int) *rankingStore {
	return &rankingStore{
		maxSize: maxSize,
		heap: entryHeap{
			items: make([]*Entry, 0, maxSize),
			index: make(map[[20]byte]int, maxSize),
		},
	}
}

func (s *rankingStore) len() int { return s.heap.Len() }

func (s *rankingStore) full() bool { return s.heap.Len() >= s.maxSize }

func (s *rankingStore) get(wallet [20]byte) (*Entry, bool) {
	idx, ok := s.heap.index[wallet]
	if !ok {
		return nil, false
	}
	return s.heap.items[idx], true
}

// min returns the last-ranked entry, which is the eviction candidate.
func (s *rankingStore) min() (*Entry, bool) {
	if s.heap.Len() == 0 {
		return nil, false
	}
	return s.heap.items[0], true
}

// apply records score for wallet under sequence number seq. It never fails:
// submissions that would not improve the board report a no-op outcome.
func (s *rankingStore) apply(wallet [20]byte, score *uint256.Int, seq uint64) SubmitResult {
	if existing, ok := s.get(wallet); ok {
		result := SubmitResult{Previous: existing.Score}
		if !score.Gt(&existing.Score) {
			result.Outcome = OutcomeUnchanged
			return result
		}
		existing.Score.Set(score)
		existing.Seq = seq
		heap.Fix(&s.heap, s.heap.index[wallet])
		result.Outcome = OutcomeUpdated
		return result
	}

	entry := &Entry{Wallet: wallet, Seq: seq}
	entry.Score.Set(score)
	if !s.full() {
		heap.Push(&s.heap, entry)
		return SubmitResult{Outcome: OutcomeInserted}
	}
	lowest, _ := s.min()
	if !score.Gt(&lowest.Score) {
		return SubmitResult{Outcome: OutcomeBelowMinimum}
	}
	evicted := *lowest
	s.heap.index[wallet] = 0
	delete(s.heap.index, evicted.Wallet)
	s.heap.items[0] = entry
	heap.Fix(&s.heap, 0)
	return SubmitResult{Outcome: OutcomeReplaced, Evicted: &evicted}
}

// revert undoes an apply that returned result. prior is the wallet's entry as
// it was before the call, nil when the wallet was not on the board.
func (s *rankingStore) revert(wallet [20]byte, result SubmitResult, prior *Entry) {
	switch result.Outcome {
	case OutcomeUpdated:
		existing, ok := s.get(wallet)
		if !ok || prior == nil {
			return
		}
		existing.Score.Set(&prior.Score)
		existing.Seq = prior.Seq
		heap.Fix(&s.heap, s.heap.index[wallet])
	case OutcomeInserted:
		s.remove(wallet)
	case OutcomeReplaced:
		s.remove(wallet)
		if result.Evicted != nil {
			s.insert(*result.Evicted)
		}
	}
}

func (s *rankingStore) remove(wallet [20]byte) {
	if idx, ok := s.heap.index[wallet]; ok {
		heap.Remove(&s.heap, idx)
	}
}

// insert places an entry without capacity checks. Used when restoring state.
func (s *rankingStore) insert(entry Entry) {
	copied := entry
	heap.Push(&s.heap, &copied)
}

// ranked returns a copy of all entries in rank order.
func (s *rankingStore) ranked() []Entry {
	out := make([]Entry, len(s.heap.items))
	for i, entry := range s.heap.items {
		out[i] = *entry
	}
	sort.Slice(out, func(i, j int) bool { return ranksAbove(&out[i], &out[j]) })
	return out
}

// rankOf returns the 1-based rank of wallet.
func (s *rankingStore) rankOf(wallet [20]byte) (int, bool) {
	target, ok := s.get(wallet)
	if !ok {
		return 0, false
	}
	rank := 1
	for _, entry := range s.heap.items {
		if entry != target && ranksAbove(entry, target) {
			rank++
		}
	}
	return rank, true
}
