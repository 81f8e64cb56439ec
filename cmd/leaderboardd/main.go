package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gmboard/config"
	"gmboard/core/events"
	"gmboard/native/leaderboard"
	"gmboard/observability"
	"gmboard/observability/logging"
	telemetry "gmboard/observability/otel"
	"gmboard/rpc"
	"gmboard/services/journal"
	"gmboard/storage"
)

const serviceName = "leaderboardd"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to the leaderboardd configuration file (TOML or YAML)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("leaderboardd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("GMBOARD_ENV"))
	if env == "" {
		env = cfg.Telemetry.Environment
	}
	logger := logging.Setup(serviceName, env)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		log.Fatalf("leaderboardd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	svc, err := newService(cfg, logger, os.LookupEnv)
	if err != nil {
		logger.Error("failed to start leaderboard", slog.Any("error", err))
		os.Exit(1)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := svc.engine.Status()
	logger.Info("leaderboard ready",
		slog.Int("entries", status.Length),
		slog.Uint64("max_size", status.MaxSize),
		slog.String("gating", string(status.Gating)),
		slog.Bool("paused", status.Paused))

	if err := svc.server.Run(ctx, cfg.ListenAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("leaderboardd stopped")
}

// service holds the wired daemon components.
type service struct {
	engine      *leaderboard.Engine
	server      *rpc.Server
	broadcaster *rpc.Broadcaster
	journal     *journal.Journal
	db          storage.Database
}

func newService(cfg *config.Config, logger *slog.Logger, lookupEnv func(string) (string, bool)) (*service, error) {
	admin, err := cfg.AdminWallet()
	if err != nil {
		return nil, err
	}
	seeds, err := cfg.SeedWallets()
	if err != nil {
		return nil, err
	}
	authCfg, err := authConfig(cfg, lookupEnv)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	svc := &service{db: db}

	engine, err := leaderboard.Open(leaderboard.Options{
		Admin:  admin,
		Params: cfg.Params(),
		Store:  storage.NewKVStore(db, "leaderboard"),
		Seed:   seeds,
	})
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("open leaderboard: %w", err)
	}
	svc.engine = engine

	emitters := events.Fanout{observability.Events()}
	var history rpc.HistoryReader
	if dsn := strings.TrimSpace(cfg.Journal.DSN); dsn != "" {
		j, err := journal.Open(dsn, logger)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		svc.journal = j
		history = j
		emitters = append(emitters, j)
	}
	svc.broadcaster = rpc.NewBroadcaster(0, logger)
	emitters = append(emitters, svc.broadcaster)
	engine.SetEmitter(emitters)

	server, err := rpc.NewServer(rpc.Config{
		Engine:       engine,
		History:      history,
		HistoryLimit: cfg.Journal.HistoryLimit,
		Broadcaster:  svc.broadcaster,
		Auth:         authCfg,
		RateLimit: rpc.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		TrustedProxies:    append([]string{}, cfg.RateLimit.TrustedProxies...),
		TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		Logger:            logger,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.server = server
	return svc, nil
}

// authConfig resolves the JWT secret from the environment variable named in
// the configuration.
func authConfig(cfg *config.Config, lookupEnv func(string) (string, bool)) (rpc.AuthConfig, error) {
	out := rpc.AuthConfig{
		JWTEnabled:    cfg.Auth.JWTEnable,
		JWTIssuer:     cfg.Auth.JWTIssuer,
		JWTAudience:   cfg.Auth.JWTAudience,
		SignatureSkew: cfg.Auth.SignatureSkew.Duration,
	}
	if !cfg.Auth.JWTEnable {
		return out, nil
	}
	envName := strings.TrimSpace(cfg.Auth.JWTSecretEnv)
	if envName == "" {
		return out, errors.New("auth: JWTSecretEnv must be set when JWT is enabled")
	}
	secret, ok := lookupEnv(envName)
	if !ok || strings.TrimSpace(secret) == "" {
		return out, fmt.Errorf("auth: %s is not set", envName)
	}
	out.JWTSecret = secret
	return out, nil
}

// Close releases every component in reverse start order.
func (s *service) Close() {
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
