package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/Reshigan/Heirloom-sub004/internal/config"
	"github.com/Reshigan/Heirloom-sub004/internal/database"
	"github.com/Reshigan/Heirloom-sub004/internal/deadman"
	"github.com/Reshigan/Heirloom-sub004/internal/escrow"
	"github.com/Reshigan/Heirloom-sub004/internal/handlers"
	"github.com/Reshigan/Heirloom-sub004/internal/logging"
	"github.com/Reshigan/Heirloom-sub004/internal/middleware"
	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"github.com/Reshigan/Heirloom-sub004/internal/routes"
	"github.com/Reshigan/Heirloom-sub004/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.EncryptionMasterKey == "" {
		slog.Error("ENCRYPTION_MASTER_KEY environment variable is required")
		os.Exit(1)
	}

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(db)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cleanupDone)

	// Redis: reminder dedup for the scheduler. Optional; the scheduler
	// fails open without it.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Notification work queue
	dispatcher := notify.NewAMQPDispatcher(cfg.AMQPURL)

	// Key escrow vault
	vault, err := escrow.NewVault(
		escrow.NewGormStore(db),
		escrow.NewGormUserStore(db),
		escrow.NewGormContactStore(db),
		dispatcher,
		cfg.EncryptionMasterKey,
	)
	if err != nil {
		slog.Error("escrow vault init failed", "error", err)
		os.Exit(1)
	}

	// Services
	authService := services.NewAuthService(db, cfg)
	contactService := services.NewContactService(db, dispatcher)

	// Switch state machine and release pipeline
	switchStore := deadman.NewGormSwitchStore(db)
	userStore := deadman.NewGormUserStore(db)
	dmsService := deadman.NewService(
		switchStore,
		deadman.NewGormCheckInStore(db),
		deadman.NewGormContactStore(db),
		deadman.NewGormVerificationStore(db),
		userStore,
		authService,
		dispatcher,
	)
	collector := deadman.NewCollector(switchStore, deadman.NewGormVerificationStore(db), userStore, dispatcher)
	coordinator := deadman.NewCoordinator(switchStore, deadman.NewGormLetterStore(db), userStore, vault, dispatcher)
	scheduler := deadman.NewScheduler(switchStore, userStore, dmsService, coordinator, dispatcher, rdb, cfg.ScanInterval)

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	go scheduler.Run(workerCtx)
	go notify.StartConsumer(workerCtx, cfg.AMQPURL)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler(db)
	deadManHandler := handlers.NewDeadManHandler(dmsService, collector)
	encryptionHandler := handlers.NewEncryptionHandler(vault)
	contactHandler := handlers.NewContactHandler(contactService)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, authHandler, healthHandler, deadManHandler, encryptionHandler, contactHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	stopWorkers()
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if err := rdb.Close(); err != nil {
		slog.Error("redis close error", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
