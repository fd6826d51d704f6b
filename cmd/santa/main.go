package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/santa-bot/internal/admins"
	"github.com/p-blackswan/santa-bot/internal/config"
	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/internal/health"
	"github.com/p-blackswan/santa-bot/internal/matcher"
	"github.com/p-blackswan/santa-bot/internal/metrics"
	"github.com/p-blackswan/santa-bot/internal/mgmt"
	"github.com/p-blackswan/santa-bot/internal/notify"
	"github.com/p-blackswan/santa-bot/internal/retry"
	slackpkg "github.com/p-blackswan/santa-bot/internal/slack"
	"github.com/p-blackswan/santa-bot/internal/store"
	"github.com/p-blackswan/santa-bot/internal/sweeper"
	"github.com/p-blackswan/santa-bot/internal/texts"
)

// backend is a session store that also keeps the archive.
type backend interface {
	store.Store
	store.Archive
}

func openStore(cfg *config.Config, logger zerolog.Logger) (backend, func() error, error) {
	if strings.EqualFold(cfg.StoreDriver, "memory") {
		return store.NewMemory(), func() error { return nil }, nil
	}
	db, err := store.OpenSQLite(cfg.StorePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	return db, db.Close, nil
}

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Str("store", cfg.StoreDriver).
		Str("matcher", string(cfg.MatcherStrategy())).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting santa bot")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	catalog := texts.Default()
	if cfg.TextsFile != "" {
		if catalog, err = texts.Load(cfg.TextsFile); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.TextsFile).Msg("failed to load texts")
		}
	}

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}

	m := metrics.New()
	checker := health.NewChecker(logger)
	checker.Register("store", health.Ping(st.Ping))
	if db, ok := st.(*store.SQLite); ok {
		err := m.Gauge("santa_store_size_bytes", "Size of the SQLite database file.", func() float64 {
			size, err := db.DBSizeBytes()
			if err != nil {
				return 0
			}
			return float64(size)
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to register store size gauge")
		}
	}

	drafter, err := matcher.New(cfg.MatcherStrategy(), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init matcher")
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.StoreRetries
	retryCfg.OnRetry = func(attempt int, err error) {
		logger.Warn().Err(err).Int("attempt", attempt).Msg("store call failed, retrying")
	}

	opts := []coordinator.Option{
		coordinator.WithTexts(catalog),
		coordinator.WithRecorder(m),
		coordinator.WithRetry(retryCfg),
	}
	if cfg.ArchiveEnabled {
		opts = append(opts, coordinator.WithArchive(st))
	}

	// Slack transport (optional, only if tokens provided)
	var (
		transport      notify.Transport
		slackTransport *slackpkg.Transport
	)
	slackClient := slackpkg.NewClient(cfg.SlackBotToken, cfg.SlackAppToken)
	if cfg.SlackEnabled() {
		slackTransport = slackpkg.NewTransport(slackClient, catalog, logger)
		resolver := admins.NewResolver(slackTransport, cfg.AdminCacheSize, cfg.AdminCacheTTL, logger)
		opts = append(opts, coordinator.WithProber(slackTransport), coordinator.WithAdmins(resolver))
		if err := m.Gauge("santa_admin_cache_hit_ratio", "Hit ratio of the admin lookup cache.", func() float64 {
			return resolver.Metrics().HitRate()
		}); err != nil {
			logger.Warn().Err(err).Msg("failed to register admin cache gauge")
		}
		transport = slackTransport
	}

	coord := coordinator.New(st, drafter, cfg.Rules(), logger, opts...)
	executor := notify.NewExecutor(transport, coord, m, logger)

	// WaitGroup for in-flight work
	var wg sync.WaitGroup

	// --- Expiry sweeper ---
	sw := sweeper.New(sweeper.Config{
		Interval:    cfg.SweepInterval,
		FirstDelay:  cfg.SweepFirstDelay,
		Concurrency: cfg.SweepConcurrency,
	}, coord, executor, m, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sw.Run(ctx)
	}()

	// --- Slack Socket Mode ---
	if cfg.SlackEnabled() {
		slackMiddleware := slackpkg.NewMiddleware(logger, 10, time.Minute)
		slackHandler := slackpkg.NewHandler(coord, executor, slackTransport, slackMiddleware, catalog, logger)
		slackApp := slackpkg.NewApp(slackClient, logger, slackHandler)
		checker.Register("slack", health.Optional(slackApp.Ping))

		logger.Info().Msg("Slack Socket Mode enabled")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := slackApp.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Slack Socket Mode error")
			}
		}()
	} else {
		logger.Info().Msg("Slack not configured, running in API-only mode")
	}

	// --- Management API ---
	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: []byte(cfg.MgmtJWTSecret),
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: cfg.CORSOrigins(),
	}, coord, executor, checker, m, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	// Cancel context to signal all goroutines
	cancel()

	// Wait for in-flight work to complete
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	if err := closeStore(); err != nil {
		logger.Error().Err(err).Msg("closing store failed")
	}

	logger.Info().Msg("santa bot stopped")
}
