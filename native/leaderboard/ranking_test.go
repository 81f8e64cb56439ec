package leaderboard

import "testing"

func TestRankingStoreRankOf(t *testing.T) {
	store := newRankingStore(4)
	store.apply(wallet(1), score(10), 1)
	store.apply(wallet(2), score(30), 2)
	store.apply(wallet(3), score(30), 3)
	store.apply(wallet(4), score(20), 4)

	cases := map[int]int{2: 1, 3: 2, 4: 3, 1: 4}
	for w, want := range cases {
		rank, ok := store.rankOf(wallet(w))
		if !ok || rank != want {
			t.Fatalf("wallet %d: rank %d ok=%v, want %d", w, rank, ok, want)
		}
	}
	if _, ok := store.rankOf(wallet(9)); ok {
		t.Fatalf("unknown wallet must not have a rank")
	}
	lowest, ok := store.min()
	if !ok || lowest.Wallet != wallet(1) {
		t.Fatalf("expected wallet 1 as eviction candidate, got %+v", lowest)
	}
}

func TestRankingStoreUpdateMovesEntry(t *testing.T) {
	store := newRankingStore(3)
	store.apply(wallet(1), score(10), 1)
	store.apply(wallet(2), score(20), 2)
	store.apply(wallet(3), score(30), 3)

	if result := store.apply(wallet(1), score(40), 4); result.Outcome != OutcomeUpdated {
		t.Fatalf("expected update, got %s", result.Outcome)
	}
	lowest, _ := store.min()
	if lowest.Wallet != wallet(2) {
		t.Fatalf("expected wallet 2 to become the minimum, got %x", lowest.Wallet)
	}
	ranked := store.ranked()
	if ranked[0].Wallet != wallet(1) || ranked[0].Seq != 4 {
		t.Fatalf("expected updated wallet first with new seq, got %+v", ranked[0])
	}
	for wallet, idx := range store.heap.index {
		if store.heap.items[idx].Wallet != wallet {
			t.Fatalf("heap index out of sync for %x", wallet)
		}
	}
}

func TestRankingStoreReplaceKeepsIndexConsistent(t *testing.T) {
	store := newRankingStore(2)
	store.apply(wallet(1), score(5), 1)
	store.apply(wallet(2), score(6), 2)
	result := store.apply(wallet(3), score(7), 3)
	if result.Outcome != OutcomeReplaced || result.Evicted.Wallet != wallet(1) {
		t.Fatalf("unexpected replace result: %+v", result)
	}
	if _, ok := store.get(wallet(1)); ok {
		t.Fatalf("evicted wallet still indexed")
	}
	if len(store.heap.index) != store.len() {
		t.Fatalf("index has %d entries, heap has %d", len(store.heap.index), store.len())
	}
	for wallet, idx := range store.heap.index {
		if store.heap.items[idx].Wallet != wallet {
			t.Fatalf("heap index out of sync for %x", wallet)
		}
	}
}

func TestRankingStoreRevertRestoresPriorState(t *testing.T) {
	store := newRankingStore(2)
	store.apply(wallet(1), score(5), 1)
	before := store.ranked()

	inserted := store.apply(wallet(2), score(6), 2)
	store.revert(wallet(2), inserted, nil)
	if store.len() != 1 {
		t.Fatalf("insert not reverted, len %d", store.len())
	}

	store.apply(wallet(2), score(6), 2)
	prior, _ := store.get(wallet(1))
	priorCopy := *prior
	updated := store.apply(wallet(1), score(9), 3)
	store.revert(wallet(1), updated, &priorCopy)
	if got, _ := store.get(wallet(1)); got.Score.Uint64() != 5 || got.Seq != 1 {
		t.Fatalf("update not reverted: %+v", got)
	}

	replaced := store.apply(wallet(3), score(7), 4)
	if replaced.Outcome != OutcomeReplaced {
		t.Fatalf("expected replace, got %s", replaced.Outcome)
	}
	store.revert(wallet(3), replaced, nil)
	store.remove(wallet(2))
	after := store.ranked()
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("replace not reverted: %+v vs %+v", after, before)
	}
	for w, idx := range store.heap.index {
		if store.heap.items[idx].Wallet != w {
			t.Fatalf("heap index out of sync for %x", w)
		}
	}
}
