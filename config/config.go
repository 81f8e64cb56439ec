package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"gmboard/crypto"
	"gmboard/native/leaderboard"
)

// EnvPrefix namespaces environment overrides, e.g. GMBOARD_LEADERBOARD_MAX_SIZE.
const EnvPrefix = "GMBOARD"

// Config captures runtime configuration for leaderboardd.
type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen" envconfig:"listen"`
	DataDir       string `toml:"DataDir" yaml:"data_dir" envconfig:"data_dir"`
	// AdminKeyPath points at the key generated alongside a default config.
	// The daemon never reads it; lb-cli uses it for admin calls.
	AdminKeyPath string `toml:"AdminKeyPath" yaml:"admin_key" envconfig:"admin_key"`

	Storage     StorageConfig     `toml:"storage" yaml:"storage" envconfig:"storage"`
	Leaderboard LeaderboardConfig `toml:"leaderboard" yaml:"leaderboard" envconfig:"leaderboard"`
	Journal     JournalConfig     `toml:"journal" yaml:"journal" envconfig:"journal"`
	Auth        AuthConfig        `toml:"auth" yaml:"auth" envconfig:"auth"`
	RateLimit   RateLimitConfig   `toml:"rate_limit" yaml:"rate_limit" envconfig:"rate_limit"`
	Telemetry   TelemetryConfig   `toml:"telemetry" yaml:"telemetry" envconfig:"telemetry"`
}

// Load reads configuration from path. TOML is used unless the extension is
// .yaml or .yml. A missing TOML file is created with defaults and a freshly
// generated admin key. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			created, err := createDefault(path)
			if err != nil {
				return nil, err
			}
			cfg = created
		} else {
			meta, err := toml.DecodeFile(path, cfg)
			if err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
			}
		}
	}

	applyDefaults(cfg)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8545"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./gmboard-data"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "leveldb"
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend == "leveldb" {
		cfg.Storage.Path = filepath.Join(cfg.DataDir, "state")
	}
	if cfg.Leaderboard.MaxSize == 0 {
		cfg.Leaderboard.MaxSize = leaderboard.DefaultMaxSize
	}
	if cfg.Leaderboard.Gating == "" {
		cfg.Leaderboard.Gating = string(leaderboard.GatingWallet)
	}
	if cfg.Journal.HistoryLimit <= 0 {
		cfg.Journal.HistoryLimit = 100
	}
	if cfg.Auth.JWTSecretEnv == "" {
		cfg.Auth.JWTSecretEnv = "GMBOARD_JWT_SECRET"
	}
	if cfg.Auth.SignatureSkew.Duration == 0 {
		cfg.Auth.SignatureSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 5
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = "dev"
	}
}

// createDefault creates and saves a default configuration file together with
// an admin key so a fresh node is immediately usable.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keyPath := filepath.Join(filepath.Dir(path), "admin.key")
	if err := crypto.SaveRawKey(keyPath, key); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress: ":8545",
		DataDir:       "./gmboard-data",
		AdminKeyPath:  keyPath,
		Storage:       StorageConfig{Backend: "leveldb"},
		Leaderboard: LeaderboardConfig{
			Admin:     key.PubKey().Address().Hex(),
			MaxSize:   leaderboard.DefaultMaxSize,
			Gating:    string(leaderboard.GatingWallet),
			Allowlist: []string{},
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
