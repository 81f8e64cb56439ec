package config

import (
	"fmt"
	"net/netip"
	"strings"

	"gmboard/crypto"
	"gmboard/native/leaderboard"
)

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("listen address must be set")
	}
	switch c.Storage.Backend {
	case "memory":
	case "leveldb":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage: leveldb backend requires a path")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if _, err := c.AdminWallet(); err != nil {
		return err
	}
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if _, err := c.SeedWallets(); err != nil {
		return err
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		if err := validateProxy(proxy); err != nil {
			return fmt.Errorf("rate_limit: trusted proxy %q: %w", proxy, err)
		}
	}
	if c.Auth.SignatureSkew.Duration < 0 {
		return fmt.Errorf("auth: signature skew must not be negative")
	}
	return nil
}

// AdminWallet parses the configured admin identity.
func (c *Config) AdminWallet() ([20]byte, error) {
	if strings.TrimSpace(c.Leaderboard.Admin) == "" {
		return [20]byte{}, fmt.Errorf("leaderboard: admin address must be set")
	}
	wallet, err := crypto.ParseWallet(c.Leaderboard.Admin)
	if err != nil {
		return [20]byte{}, fmt.Errorf("leaderboard: admin: %w", err)
	}
	if wallet == ([20]byte{}) {
		return [20]byte{}, fmt.Errorf("leaderboard: admin must not be the zero address")
	}
	return wallet, nil
}

// Params returns the engine parameters.
func (c *Config) Params() leaderboard.Params {
	return leaderboard.Params{
		MaxSize: c.Leaderboard.MaxSize,
		Gating:  leaderboard.GatingMode(strings.ToLower(strings.TrimSpace(c.Leaderboard.Gating))),
	}
}

// SeedWallets parses the initial allowlist.
func (c *Config) SeedWallets() ([][20]byte, error) {
	out := make([][20]byte, 0, len(c.Leaderboard.Allowlist))
	for _, raw := range c.Leaderboard.Allowlist {
		wallet, err := crypto.ParseWallet(raw)
		if err != nil {
			return nil, fmt.Errorf("leaderboard: allowlist entry %q: %w", raw, err)
		}
		out = append(out, wallet)
	}
	return out, nil
}

func validateProxy(entry string) error {
	trimmed := strings.TrimSpace(entry)
	if strings.Contains(trimmed, "/") {
		_, err := netip.ParsePrefix(trimmed)
		return err
	}
	_, err := netip.ParseAddr(trimmed)
	return err
}
