package leaderboard

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden marks admin-only operations attempted by another identity.
	ErrForbidden = errors.New("leaderboard: forbidden")
	// ErrUnauthorized marks submissions rejected by pause or allowlist policy.
	ErrUnauthorized = errors.New("leaderboard: unauthorized")
	// ErrNotAllowlisted is the allowlist flavour of ErrUnauthorized.
	ErrNotAllowlisted = fmt.Errorf("%w: not allowlisted", ErrUnauthorized)

	ErrInvalidParams    = errors.New("leaderboard: invalid params")
	ErrInvalidScore     = errors.New("leaderboard: score required")
	ErrInvalidWallet    = errors.New("leaderboard: wallet required")
	ErrAdminRequired    = errors.New("leaderboard: admin required")
	ErrAdminMismatch    = errors.New("leaderboard: stored admin differs from configured admin")
	ErrCapacityMismatch = errors.New("leaderboard: stored entries exceed configured max size")
	ErrCorruptState     = errors.New("leaderboard: corrupt stored state")
)
