package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"reward-engine/catalog"
	"reward-engine/config"
	"reward-engine/handlers"
	"reward-engine/logging"
	"reward-engine/metrics"
	"reward-engine/middleware"
	"reward-engine/services"
	"reward-engine/store"
	"reward-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}

	logger := logging.Setup("reward-engine", cfg.Environment, cfg.LogLevel, cfg.LogFile)
	engineMetrics := metrics.Engine()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	var objects catalog.ObjectGetter
	if strings.HasPrefix(cfg.JobCatalog, "s3://") {
		client, err := catalog.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		objects = client
	}
	jobs, err := catalog.Load(ctx, cfg.JobCatalog, objects)
	if err != nil {
		log.Fatal("failed to load job catalog:", err)
	}

	var sink workers.Sink = workers.LogSink{Logger: logger}
	if cfg.NotifierURL != "" {
		sink = workers.NewWebhookSink(cfg.NotifierURL, cfg.ServiceToken)
	}
	dispatcher := workers.NewLevelUpDispatcher(sink, cfg.LevelUpQueueSize, logger, engineMetrics)
	dispatcher.Start(ctx)

	accounts := store.NewAccounts(db)
	configCache := services.NewScopeConfigCache(store.NewScopeConfigs(db), cfg.ConfigCacheTTL, logger, engineMetrics)
	progressionService := services.NewProgressionService(accounts, configCache, dispatcher, logger, engineMetrics)
	workService := services.NewWorkService(accounts, jobs, cfg.WorkCooldown, logger, engineMetrics)
	vaultService := services.NewVaultService(accounts, services.VaultCurve{
		BaseCapacity:     cfg.Vault.BaseCapacity,
		PerLevelCapacity: cfg.Vault.PerLevelCapacity,
		BaseUpgradeCost:  cfg.Vault.BaseUpgradeCost,
		UpgradeGrowth:    cfg.Vault.UpgradeGrowth,
	}, logger, engineMetrics)

	sweeper, err := services.StartConfigSweeper(configCache, cfg.ConfigSweepInterval, logger)
	if err != nil {
		log.Fatal("failed to start config sweeper:", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles",
		MaxAge:       86400, // 24 hours
	}))

	// Only gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, logger))

	handlers.SetupMetricsRoutes(app)
	handlers.SetupProgressionRoutes(app, progressionService, configCache, logger)
	handlers.SetupWorkRoutes(app, workService, logger)
	handlers.SetupVaultRoutes(app, vaultService, logger)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	logger.Info("✅ reward engine running",
		"addr", cfg.ListenAddr, "jobs", len(jobs.Jobs()), "environment", cfg.Environment)

	<-ctx.Done()
	logger.Info("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := sweeper.Shutdown(); err != nil {
		logger.Error("sweeper shutdown", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
