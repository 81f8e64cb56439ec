package leaderboard

import (
	"bytes"
	"fmt"
	"sort"

	nativecommon "gmboard/native/common"
)

// AccessController owns the admin identity, the allowlist and the pause flag.
// It performs no locking of its own; the engine serialises every call.
type AccessController struct {
	admin     [20]byte
	gating    GatingMode
	paused    bool
	allowlist map[[20]byte]struct{}
}

// NewAccessController constructs a controller for admin. The allowlist starts
// empty and submissions start unpaused.
func NewAccessController(admin [20]byte, gating GatingMode) (*AccessController, error) {
	if admin == ([20]byte{}) {
		return nil, ErrAdminRequired
	}
	return &AccessController{
		admin:     admin,
		gating:    gating,
		allowlist: make(map[[20]byte]struct{}),
	}, nil
}

// Admin returns the immutable admin identity.
func (a *AccessController) Admin() [20]byte { return a.admin }

// Gating returns the active gating mode.
func (a *AccessController) Gating() GatingMode { return a.gating }

// IsPaused implements nativecommon.PauseView.
func (a *AccessController) IsPaused(module string) bool {
	return module == moduleName && a.paused
}

// IsWhitelisted reports allowlist membership.
func (a *AccessController) IsWhitelisted(wallet [20]byte) bool {
	_, ok := a.allowlist[wallet]
	return ok
}

// Len returns the number of allowlisted wallets.
func (a *AccessController) Len() int { return len(a.allowlist) }

// Allowlist returns the members sorted by raw bytes.
func (a *AccessController) Allowlist() [][20]byte {
	out := make([][20]byte, 0, len(a.allowlist))
	for wallet := range a.allowlist {
		out = append(out, wallet)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func (a *AccessController) requireAdmin(caller [20]byte) error {
	if caller != a.admin {
		return ErrForbidden
	}
	return nil
}

// Add lists wallet. The returned flag is false when it was already listed.
func (a *AccessController) Add(caller, wallet [20]byte) (bool, error) {
	if err := a.requireAdmin(caller); err != nil {
		return false, err
	}
	if wallet == ([20]byte{}) {
		return false, ErrInvalidWallet
	}
	if _, ok := a.allowlist[wallet]; ok {
		return false, nil
	}
	a.allowlist[wallet] = struct{}{}
	return true, nil
}

// Remove unlists wallet. The returned flag is false when it was not listed.
func (a *AccessController) Remove(caller, wallet [20]byte) (bool, error) {
	if err := a.requireAdmin(caller); err != nil {
		return false, err
	}
	if _, ok := a.allowlist[wallet]; !ok {
		return false, nil
	}
	delete(a.allowlist, wallet)
	return true, nil
}

// SetPaused sets the pause flag. The returned flag reports whether it flipped.
func (a *AccessController) SetPaused(caller [20]byte, paused bool) (bool, error) {
	if err := a.requireAdmin(caller); err != nil {
		return false, err
	}
	if a.paused == paused {
		return false, nil
	}
	a.paused = paused
	return true, nil
}

// Authorize checks whether caller may submit a score for wallet. The pause
// guard runs first, so a paused board reports ErrUnauthorized for every
// submission, including ones naming the zero wallet.
func (a *AccessController) Authorize(caller, wallet [20]byte) error {
	if err := nativecommon.Guard(a, moduleName); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if wallet == ([20]byte{}) {
		return ErrInvalidWallet
	}
	switch a.gating {
	case GatingDisabled:
		return nil
	case GatingOpen:
		if len(a.allowlist) == 0 || a.IsWhitelisted(wallet) {
			return nil
		}
	case GatingCaller:
		if a.IsWhitelisted(caller) {
			return nil
		}
	default:
		if a.IsWhitelisted(wallet) {
			return nil
		}
	}
	return ErrNotAllowlisted
}

func (a *AccessController) restore(paused bool, allowlist [][20]byte) {
	a.paused = paused
	a.allowlist = make(map[[20]byte]struct{}, len(allowlist))
	for _, wallet := range allowlist {
		a.allowlist[wallet] = struct{}{}
	}
}
