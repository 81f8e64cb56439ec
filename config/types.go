package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so TOML, YAML and environment values can be
// written as human readable strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Backend string `toml:"Backend" yaml:"backend" envconfig:"backend"`
	Path    string `toml:"Path" yaml:"path" envconfig:"path"`
}

// LeaderboardConfig captures engine parameters.
type LeaderboardConfig struct {
	Admin   string `toml:"Admin" yaml:"admin" envconfig:"admin"`
	MaxSize uint64 `toml:"MaxSize" yaml:"max_size" envconfig:"max_size"`
	Gating  string `toml:"Gating" yaml:"gating" envconfig:"gating"`
	// Allowlist is applied on first initialisation only.
	Allowlist []string `toml:"Allowlist" yaml:"allowlist" envconfig:"allowlist"`
}

// JournalConfig configures the event history database. An empty DSN disables
// the journal.
type JournalConfig struct {
	DSN          string `toml:"DSN" yaml:"dsn" envconfig:"dsn"`
	HistoryLimit int    `toml:"HistoryLimit" yaml:"history_limit" envconfig:"history_limit"`
}

// AuthConfig controls how RPC callers prove their identity.
type AuthConfig struct {
	JWTEnable     bool     `toml:"JWTEnable" yaml:"jwt_enable" envconfig:"jwt_enable"`
	JWTSecretEnv  string   `toml:"JWTSecretEnv" yaml:"jwt_secret_env" envconfig:"jwt_secret_env"`
	JWTIssuer     string   `toml:"JWTIssuer" yaml:"jwt_issuer" envconfig:"jwt_issuer"`
	JWTAudience   string   `toml:"JWTAudience" yaml:"jwt_audience" envconfig:"jwt_audience"`
	SignatureSkew Duration `toml:"SignatureSkew" yaml:"signature_skew" envconfig:"signature_skew"`
}

// RateLimitConfig bounds mutating RPC calls per client. Clients are keyed by
// peer address unless the peer is a trusted proxy, in which case
// X-Forwarded-For is consulted.
type RateLimitConfig struct {
	RequestsPerSecond float64  `toml:"RequestsPerSecond" yaml:"requests_per_second" envconfig:"requests_per_second"`
	Burst             int      `toml:"Burst" yaml:"burst" envconfig:"burst"`
	TrustedProxies    []string `toml:"TrustedProxies" yaml:"trusted_proxies" envconfig:"trusted_proxies"`
	TrustProxyHeaders bool     `toml:"TrustProxyHeaders" yaml:"trust_proxy_headers" envconfig:"trust_proxy_headers"`
}

// TelemetryConfig configures OTLP exporters.
type TelemetryConfig struct {
	Environment string `toml:"Environment" yaml:"environment" envconfig:"environment"`
	Endpoint    string `toml:"Endpoint" yaml:"endpoint" envconfig:"endpoint"`
	Insecure    bool   `toml:"Insecure" yaml:"insecure" envconfig:"insecure"`
	Metrics     bool   `toml:"Metrics" yaml:"metrics" envconfig:"metrics"`
	Traces      bool   `toml:"Traces" yaml:"traces" envconfig:"traces"`
}
