package leaderboard

import (
	"errors"
	"testing"
)

func TestAuthorizeGatingModes(t *testing.T) {
	listed := wallet(1)
	other := wallet(2)

	cases := []struct {
		name    string
		gating  GatingMode
		seed    [][20]byte
		caller  [20]byte
		wallet  [20]byte
		allowed bool
	}{
		{name: "disabled", gating: GatingDisabled, caller: other, wallet: other, allowed: true},
		{name: "open empty allowlist", gating: GatingOpen, caller: other, wallet: other, allowed: true},
		{name: "open listed wallet", gating: GatingOpen, seed: [][20]byte{listed}, caller: other, wallet: listed, allowed: true},
		{name: "open unlisted wallet", gating: GatingOpen, seed: [][20]byte{listed}, caller: listed, wallet: other},
		{name: "wallet listed", gating: GatingWallet, seed: [][20]byte{listed}, caller: other, wallet: listed, allowed: true},
		{name: "wallet unlisted", gating: GatingWallet, seed: [][20]byte{listed}, caller: listed, wallet: other},
		{name: "caller listed", gating: GatingCaller, seed: [][20]byte{listed}, caller: listed, wallet: other, allowed: true},
		{name: "caller unlisted", gating: GatingCaller, seed: [][20]byte{listed}, caller: other, wallet: listed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			access, err := NewAccessController(testAdmin, tc.gating)
			if err != nil {
				t.Fatalf("new controller: %v", err)
			}
			for _, w := range tc.seed {
				if _, err := access.Add(testAdmin, w); err != nil {
					t.Fatalf("seed: %v", err)
				}
			}
			err = access.Authorize(tc.caller, tc.wallet)
			if tc.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestPauseOverridesDisabledGating(t *testing.T) {
	access, err := NewAccessController(testAdmin, GatingDisabled)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if changed, err := access.SetPaused(testAdmin, true); err != nil || !changed {
		t.Fatalf("pause: changed=%v err=%v", changed, err)
	}
	if err := access.Authorize(testAdmin, wallet(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected pause to reject even the admin, got %v", err)
	}
}

func TestAllowlistSortedAndRejectsZeroWallet(t *testing.T) {
	access, _ := NewAccessController(testAdmin, GatingWallet)
	for _, i := range []int{3, 1, 2} {
		if _, err := access.Add(testAdmin, wallet(i)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	members := access.Allowlist()
	for i, want := range []int{1, 2, 3} {
		if members[i] != wallet(want) {
			t.Fatalf("member %d: got %x", i, members[i])
		}
	}
	if _, err := access.Add(testAdmin, [20]byte{}); !errors.Is(err, ErrInvalidWallet) {
		t.Fatalf("expected invalid wallet, got %v", err)
	}
}
