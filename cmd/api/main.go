package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"fintherapy-backend/config"
	_ "fintherapy-backend/docs" // Important for Swagger
	"fintherapy-backend/internal/delivery/http/middleware"
	v1 "fintherapy-backend/internal/delivery/http/v1"
	"fintherapy-backend/internal/domain"
	"fintherapy-backend/internal/repository/postgres"
	"fintherapy-backend/internal/usecase"
	"fintherapy-backend/pkg/archive"
	"fintherapy-backend/pkg/auth"
	"fintherapy-backend/pkg/billing"
	"fintherapy-backend/pkg/database"
	"fintherapy-backend/pkg/events"
	"fintherapy-backend/pkg/identityprovider"
	"fintherapy-backend/pkg/logger"
	"fintherapy-backend/pkg/metrics"
	"fintherapy-backend/pkg/redis"
	"fintherapy-backend/pkg/rolepolicy"
	"fintherapy-backend/pkg/security"
	"fintherapy-backend/pkg/validation"
	"fintherapy-backend/pkg/webhook"
)

// @title           FinTherapy Identity Sync API
// @version         1.0
// @description     Identity webhook ingestion and user synchronization for the financial therapy marketplace.
// @host            localhost:8080
// @BasePath        /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Setup Logger
	logger.Init(cfg.LogLevel)
	logger.Log.Info("Starting identity sync service", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Setup Database
	dbPool, err := database.NewPostgresConnection(ctx, cfg.DBUrl)
	if err != nil {
		logger.Log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DBUrl); err != nil {
			logger.Log.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	// 4. Role policy, reloaded on file change
	policy, err := rolepolicy.NewStore(cfg.RolePolicyFile)
	if err != nil {
		logger.Log.Error("Failed to load role policy", "path", cfg.RolePolicyFile, "error", err)
		os.Exit(1)
	}
	if cfg.RolePolicyWatch {
		if err := policy.Watch(ctx); err != nil {
			logger.Log.Warn("Role policy hot reload disabled", "error", err)
		}
	}

	// 5. Observability
	audit := security.InitSecurityLogger("identity-sync", security.Environment())
	defer audit.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 6. External services
	idp := identityprovider.NewClient(cfg.ClerkAPIURL, cfg.ClerkSecretKey, cfg.IdPRateLimitRPS)

	var provisioner domain.BillingProvisioner
	if cfg.StripeSecretKey != "" {
		provisioner = billing.NewStripeProvisioner(cfg.StripeSecretKey)
	} else {
		logger.Log.Warn("STRIPE_SECRET_KEY not configured, billing customers will not be provisioned")
	}

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaAnalyticsTopic)
	defer publisher.Close()

	var redisClient *goredis.Client
	if cfg.UpstashRedisURL != "" {
		redisClient, err = redis.NewClient(ctx, redis.Config{URL: cfg.UpstashRedisURL, Password: cfg.UpstashRedisPassword})
		if err != nil {
			logger.Log.Warn("Redis unavailable, continuing without delivery de-duplication", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var eventArchive v1.EventArchive
	if cfg.EventArchiveBucket != "" {
		s3Client, err := archive.NewS3Client(ctx, archive.Config{
			Bucket:          cfg.EventArchiveBucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logger.Log.Warn("Event archive disabled", "error", err)
		} else {
			eventArchive = archive.NewEventArchive(s3Client, cfg.EventArchiveBucket)
		}
	}

	// 7. Setup Repositories
	transactor := postgres.NewTransactor(dbPool)
	userRepo := postgres.NewUserRepository(dbPool)
	orphanRepo := postgres.NewOrphanRepository(dbPool)
	billingRepo := postgres.NewBillingRepository(dbPool)

	// 8. Setup UseCases
	validate := validation.New()
	compensator := usecase.NewCompensator(idp, orphanRepo, audit, collector, usecase.CompensatorConfig{
		MaxAttempts:    cfg.CompensationMaxAttempts,
		InitialBackoff: cfg.CompensationInitialBackoff,
	})
	userSyncUC := usecase.NewUserSyncUsecase(usecase.UserSyncDeps{
		Transactor:  transactor,
		Resolver:    usecase.NewRoleResolver(policy, collector),
		Associator:  usecase.NewEmployerAssociator(policy, collector),
		Compensator: compensator,
		PostCommit:  usecase.NewPostCommitRunner(idp, provisioner, billingRepo, publisher, collector),
		Audit:       audit,
		Metrics:     collector,
	})
	sessionUC := usecase.NewSessionUsecase(transactor)
	webhookUC := usecase.NewWebhookUsecase(userSyncUC, sessionUC, validate, collector)
	orphanUC := usecase.NewOrphanUsecase(orphanRepo, idp, collector)
	authUC := usecase.NewAuthUsecase(userRepo)

	checks := map[string]usecase.HealthCheck{
		"postgres": dbPool.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redis.HealthCheck(ctx, redisClient) }
	}
	healthUC := usecase.NewHealthUsecase(checks)

	// 9. Webhook verification
	var verifier v1.SignatureVerifier = v1.RejectAllVerifier{}
	if cfg.ClerkWebhookSecret != "" {
		v, err := webhook.NewVerifier(cfg.ClerkWebhookSecret)
		if err != nil {
			logger.Log.Error("Invalid webhook signing secret", "error", err)
			os.Exit(1)
		}
		verifier = v
	}

	webhookDeps := v1.WebhookDeps{
		Verifier:  verifier,
		WebhookUC: webhookUC,
		Archive:   eventArchive,
		Audit:     audit,
		Validate:  validate,
	}
	if redisClient != nil {
		webhookDeps.Guard = redis.NewDeliveryGuard(redisClient, cfg.WebhookDedupTTL)
	}

	// 10. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		AuthUC:         authUC,
		OrphanUC:       orphanUC,
		HealthUC:       healthUC,
		Webhook:        webhookDeps,
		Sessions:       auth.NewProvider(cfg.ClerkJWKSURL),
		AdminRateLimit: middleware.NewRateLimiter(middleware.AdminRateLimitConfig(), redisClient),
		Metrics:        metrics.Handler(registry),
	})

	// 11. Orphan sweeper
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.OrphanSweepSchedule, func() {
		resolved, err := orphanUC.Sweep(ctx)
		if err != nil {
			logger.Log.Error("Orphan sweep failed", "error", err)
			return
		}
		if resolved > 0 {
			logger.Log.Info("Orphan sweep resolved identities", "resolved", resolved)
		}
	})
	if err != nil {
		logger.Log.Error("Invalid orphan sweep schedule", "schedule", cfg.OrphanSweepSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	// 12. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
			stop()
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	logger.Log.Info("Server exiting")
}
