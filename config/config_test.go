package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gmboard/crypto"
	"gmboard/native/leaderboard"
)

const testAdminHex = "0x00000000000000000000000000000000000000aD"

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/gmboard"

[storage]
Backend = "memory"

[leaderboard]
Admin = "`+testAdminHex+`"
MaxSize = 10
Gating = "caller"
Allowlist = ["0x0000000000000000000000000000000000000001"]

[auth]
SignatureSkew = "45s"

[rate_limit]
RequestsPerSecond = 2.5
Burst = 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, uint64(10), cfg.Params().MaxSize)
	require.Equal(t, leaderboard.GatingCaller, cfg.Params().Gating)
	require.Equal(t, 45*time.Second, cfg.Auth.SignatureSkew.Duration)
	require.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	require.Equal(t, 100, cfg.Journal.HistoryLimit)

	admin, err := cfg.AdminWallet()
	require.NoError(t, err)
	require.Equal(t, byte(0xad), admin[19])

	seed, err := cfg.SeedWallets()
	require.NoError(t, err)
	require.Len(t, seed, 1)
	require.Equal(t, byte(1), seed[0][19])
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `listen: ":7000"
storage:
  backend: leveldb
  path: /tmp/board
leaderboard:
  admin: "`+testAdminHex+`"
auth:
  signature_skew: 1m
journal:
  dsn: "file::memory:"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddress)
	require.Equal(t, "/tmp/board", cfg.Storage.Path)
	require.Equal(t, leaderboard.DefaultMaxSize, cfg.Leaderboard.MaxSize)
	require.Equal(t, string(leaderboard.GatingWallet), cfg.Leaderboard.Gating)
	require.Equal(t, time.Minute, cfg.Auth.SignatureSkew.Duration)
	require.Equal(t, "file::memory:", cfg.Journal.DSN)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `leaderboard:
  admin: "`+testAdminHex+`"
  max_size: 50
storage:
  backend: memory
`)
	t.Setenv("GMBOARD_LEADERBOARD_MAX_SIZE", "25")
	t.Setenv("GMBOARD_LEADERBOARD_GATING", "disabled")
	t.Setenv("GMBOARD_AUTH_SIGNATURE_SKEW", "10s")
	t.Setenv("GMBOARD_LISTEN", ":1234")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(25), cfg.Leaderboard.MaxSize)
	require.Equal(t, leaderboard.GatingDisabled, cfg.Params().Gating)
	require.Equal(t, 10*time.Second, cfg.Auth.SignatureSkew.Duration)
	require.Equal(t, ":1234", cfg.ListenAddress)
}

func TestLoadCreatesDefaultTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, filepath.Join(dir, "admin.key"), cfg.AdminKeyPath)

	key, err := crypto.LoadSigningKey(cfg.AdminKeyPath, nil)
	require.NoError(t, err)
	admin, err := cfg.AdminWallet()
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Wallet(), admin)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Leaderboard.Admin, reloaded.Leaderboard.Admin)
	require.Equal(t, leaderboard.DefaultMaxSize, reloaded.Leaderboard.MaxSize)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"missing admin": `[storage]
Backend = "memory"
`,
		"bad gating": `[storage]
Backend = "memory"
[leaderboard]
Admin = "` + testAdminHex + `"
Gating = "everyone"
`,
		"bad backend": `[storage]
Backend = "redis"
[leaderboard]
Admin = "` + testAdminHex + `"
`,
		"bad allowlist": `[storage]
Backend = "memory"
[leaderboard]
Admin = "` + testAdminHex + `"
Allowlist = ["nope"]
`,
		"bad trusted proxy": `[storage]
Backend = "memory"
[leaderboard]
Admin = "` + testAdminHex + `"
[rate_limit]
TrustedProxies = ["10.0.0.0/33"]
`,
		"unknown field": `Mystery = true
[leaderboard]
Admin = "` + testAdminHex + `"
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "config.toml", contents)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
