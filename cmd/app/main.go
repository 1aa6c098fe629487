// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"formative-compliance/internal/catalog"
	"formative-compliance/internal/config"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
	aiAdapters "formative-compliance/internal/infra/adapters/ai"
	payAdapters "formative-compliance/internal/infra/adapters/payment"
	"formative-compliance/internal/infra/adapters/render"
	"formative-compliance/internal/infra/adapters/storage"
	"formative-compliance/internal/infra/api"
	pg "formative-compliance/internal/infra/db/postgres"
	"formative-compliance/internal/infra/logging"
	"formative-compliance/internal/infra/metrics"
	red "formative-compliance/internal/infra/redis"
	"formative-compliance/internal/infra/sched"
	"formative-compliance/internal/infra/worker"
	"formative-compliance/internal/usecase"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	cat, err := catalog.Default()
	if err != nil {
		logger.Fatal().Err(err).Msg("catalog")
	}
	st := cat.Stats()
	logger.Info().Int("industries", st.Industries).Int("documents", st.TotalDocuments).Msg("catalog loaded")

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	var locker adapter.Locker
	if cfg.Quota.SerializePerUser {
		locker = red.NewLocker(redisClient)
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	entRepo := pg.NewEntitlementRepoCacheDecorator(pg.NewEntitlementRepo(pool), redisClient, cfg.Redis.TTL, logger)
	subRepo := pg.NewSubscriptionRepo(pool)
	usageRepo := pg.NewUsageRepo(pool)
	docRepo := pg.NewDocumentRepo(pool)
	downloadRepo := pg.NewDownloadRepo(pool)
	activityRepo := pg.NewActivityRepo(pool)
	checkoutRepo := pg.NewCheckoutRepo(pool)

	// ---- Adapters ----
	ai := buildAI(ctx, cfg, logger)
	gateway := buildGateway(cfg, logger)
	objects := buildStorage(ctx, cfg, logger)

	workers := worker.NewPool(cfg.Worker.Workers, logger)
	workers.Start(ctx)

	// ---- Use cases ----
	overrides := make(map[string]model.Tier, len(cfg.Stripe.TierOverrides))
	for name, tier := range cfg.Stripe.TierOverrides {
		overrides[name] = model.ParseTier(tier)
	}

	entUC := usecase.NewEntitlementUseCase(entRepo, subRepo, usageRepo, cfg.Quota.StarterMonthlyLimit, logger,
		usecase.WithTierOverrides(overrides))
	genUC := usecase.NewGenerationUseCase(cat, entUC, ai,
		[]adapter.DocumentRenderer{render.NewPDFRenderer(), render.NewDOCXRenderer()},
		objects, docRepo, activityRepo, workers, locker,
		usecase.GenerationConfig{
			Model:            cfg.AI.DefaultModel,
			MaxPromptTokens:  cfg.AI.MaxPromptTokens,
			MinContentChars:  cfg.AI.MinContentChars,
			SerializePerUser: cfg.Quota.SerializePerUser,
			LockTTL:          cfg.Quota.LockTTL,
		}, logger)
	docUC := usecase.NewDocumentUseCase(docRepo, downloadRepo, activityRepo, usageRepo, objects, tm, cfg.Storage.PresignTTL, logger)
	checkoutUC := usecase.NewCheckoutUseCase(gateway, checkoutRepo, activityRepo, usecase.CheckoutConfig{
		PublicURL:   cfg.HTTP.PublicURL,
		SuccessPath: cfg.Stripe.SuccessPath,
		CancelPath:  cfg.Stripe.CancelPath,
	}, logger)
	billingUC := usecase.NewBillingUseCase(gateway, tm, subRepo, entRepo, checkoutRepo, overrides, logger)

	// ---- Workers ----
	sweeper := sched.NewSweepWorker(cfg.Scheduler.SweepInterval, billingUC, logger)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("sweep worker stopped")
		}
	}()
	go sched.NewCheckoutExpirer(billingUC, cfg.Scheduler.SweepInterval, cfg.Scheduler.CheckoutTTL, logger).Start(ctx)

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Entitlements: entUC,
		Generation:   genUC,
		Documents:    docUC,
		Checkout:     checkoutUC,
		Billing:      billingUC,
		Catalog:      cat,
		Auth:         api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, 0),
		Limiter:      rateLimiter,
		Probes:       map[string]api.Pinger{"postgres": pool, "redis": redisClient},
	}, api.Options{
		Port:            cfg.HTTP.Port,
		RequestTimeout:  cfg.HTTP.RequestTimeout,
		GenerateTimeout: cfg.HTTP.GenerateTimeout,
		TrustProxy:      cfg.HTTP.TrustProxy,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// in-flight activity writes finish before the database goes away
	workers.Stop()
	cancel()
	logger.Info().Msg("bye")
}

// buildAI picks the configured providers; without keys in dev mode it falls back to the
// offline writer.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) adapter.AIServiceAdapter {
	providers := map[string]adapter.AIServiceAdapter{}
	defaultProvider := ""

	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIConfig{
			APIKey:          cfg.AI.OpenAIKey,
			Model:           cfg.AI.DefaultModel,
			MaxOutputTokens: cfg.AI.MaxOutputTokens,
			Temperature:     cfg.AI.Temperature,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		providers["openai"] = oa
		defaultProvider = "openai"
	}
	if cfg.AI.GeminiKey != "" {
		ga, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens, cfg.AI.Temperature)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		providers["gemini"] = ga
		if defaultProvider == "" {
			defaultProvider = "gemini"
		}
	}
	if len(providers) == 0 {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("no AI provider configured: set ai.openai_key or ai.gemini_key")
		}
		logger.Warn().Msg("no AI provider configured; using the offline writer")
		providers["noop"] = aiAdapters.NewNoopAIAdapter(logger)
		defaultProvider = "noop"
	}
	logger.Info().Str("default_provider", defaultProvider).Str("model", cfg.AI.DefaultModel).Msg("AI adapter ready")

	multi := aiAdapters.NewMultiAIAdapter(defaultProvider, providers, nil)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit)
}

func buildGateway(cfg *config.Config, logger *zerolog.Logger) adapter.PaymentGateway {
	if cfg.Stripe.SecretKey != "" {
		gw, err := payAdapters.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("stripe gateway")
		}
		return gw
	}
	if !cfg.Runtime.Dev {
		logger.Fatal().Msg("stripe.secret_key is required outside dev mode")
	}
	logger.Warn().Msg("stripe not configured; using the offline gateway")
	return payAdapters.NewNoopPaymentGateway(cfg.Stripe.WebhookSecret,
		adapter.PriceInfo{ID: "price_dev_starter", ProductID: "prod_dev_starter", ProductName: "Starter", Recurring: true, UnitAmount: 2900, Currency: "aud"},
		adapter.PriceInfo{ID: "price_dev_pro", ProductID: "prod_dev_pro", ProductName: "Pro", Recurring: true, UnitAmount: 7900, Currency: "aud"},
		adapter.PriceInfo{ID: "price_dev_pack", ProductID: "prod_dev_pack", ProductName: model.PackProductName("ndis", "ndis-full"), UnitAmount: 14900, Currency: "aud"},
	)
}

func buildStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) adapter.ObjectStorage {
	if cfg.Storage.Bucket != "" {
		s3s, err := storage.NewS3Storage(ctx, &cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("s3 storage")
		}
		return s3s
	}
	if !cfg.Runtime.Dev {
		logger.Fatal().Msg("storage.bucket is required outside dev mode")
	}
	logger.Warn().Msg("object storage not configured; files are kept in memory")
	return storage.NewMemoryStorage(cfg.HTTP.PublicURL + "/files")
}
