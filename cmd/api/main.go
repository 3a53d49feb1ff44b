package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"charagen/internal/adapter/repo"
	"charagen/internal/credits"
	"charagen/internal/domain"
	"charagen/internal/events"
	"charagen/internal/generation"
	"charagen/internal/http/handlers"
	httpapi "charagen/internal/http/httpapi"
	"charagen/internal/infra"
	"charagen/internal/infra/credentials"
	"charagen/internal/infra/geoip"
	"charagen/internal/infra/migrations"
	"charagen/internal/metrics"
	"charagen/internal/providers/inference"
)

const shutdownGrace = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLoggerTo(os.Stdout, cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if _, err := migrations.Up(cfg.DatabaseURL, &logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()
	reg := metrics.New()
	sqlRunner := infra.NewSQLRunner(pool, logger).Observe(reg.SQLQuery)

	var (
		ledger domain.CreditLedger
		rdb    *redis.Client
	)
	switch cfg.CreditLedger {
	case infra.LedgerRedis:
		rdb, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		ledger = credits.NewRedisLedger(rdb)
	default:
		ledger = credits.NewPGLedger(sqlRunner)
	}
	logger.Info().Str("ledger", cfg.CreditLedger).Msg("credit ledger ready")

	apiKey, err := credentials.NewStore(sqlRunner).ResolveInferenceAPIKey(ctx, cfg.InferenceAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("stored inference key unavailable, using environment")
	}
	provider, err := inference.NewClient(inference.Options{
		APIKey:         apiKey,
		BaseURL:        cfg.InferenceBaseURL,
		Model:          cfg.InferenceModel,
		Logger:         &logger,
		RequestTimeout: cfg.InferenceTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure inference client")
	}
	if !provider.HasCredentials() {
		logger.Warn().Msg("inference api key missing, submissions will fail")
	}

	gate := credits.NewGate(ledger, &logger).OnDecision(reg.CreditCheck)
	history := repo.NewGenerationRepository(sqlRunner)
	recorders := generation.Recorders{history}
	if cfg.AMQPURL != "" {
		publisher, conn, err := events.Dial(cfg.AMQPURL, cfg.AMQPQueue, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect amqp")
		}
		defer conn.Close()
		defer publisher.Close()
		recorders = append(recorders, publisher)
		logger.Info().Str("queue", cfg.AMQPQueue).Msg("publishing generation events")
	}

	manager := generation.NewManager(ctx, generation.Dependencies{
		Gate: gate,
		Submitter: generation.NewSubmitter(provider, generation.SubmitterOptions{
			Model:                cfg.InferenceModel,
			FullStrengthAdapters: cfg.FullStrengthAdapters,
			Logger:               &logger,
		}),
		Poller: generation.NewPoller(provider, generation.PollerOptions{
			Interval: cfg.PollInterval,
			Metrics:  reg,
			Logger:   &logger,
		}),
		Provider: provider,
		Recorder: recorders,
		Metrics:  reg,
		Logger:   &logger,
	})
	defer manager.Shutdown()
	go pruneSessions(ctx, manager, cfg.SessionIdleTTL, logger)

	countries, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer countries.Close()

	app := handlers.NewApp(handlers.Options{
		Sessions: manager,
		Credits:  gate,
		History:  history,
		Ready: func(ctx context.Context) error {
			var errs []error
			if err := pool.Ping(ctx); err != nil {
				errs = append(errs, err)
			}
			if rdb != nil {
				if err := rdb.Ping(ctx).Err(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
		Logger:      &logger,
		WaitTimeout: cfg.GenerationWait,
	})

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:          cfg.JWTSecret,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMin,
		DefaultLocale:      cfg.DefaultLocale,
		CountryLookup:      countries.Lookup(),
		Metrics:            reg,
		Logger:             logger,
	})

	if err := infra.NewHTTPServer(cfg, router, logger).Run(ctx, shutdownGrace); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}

// pruneSessions drops idle sessions every ttl/4 until ctx is done.
func pruneSessions(ctx context.Context, m *generation.Manager, ttl time.Duration, logger infra.Logger) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(ttl); n > 0 {
				logger.Debug().Int("pruned", n).Int("active", m.Len()).Msg("generation sessions pruned")
			}
		}
	}
}
