// Package main provides the entry point for the Uwabami number brokering engine
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/amirphl/Uwabami/app/handlers"
	"github.com/amirphl/Uwabami/app/router"
	"github.com/amirphl/Uwabami/app/scheduler"
	"github.com/amirphl/Uwabami/app/services"
	businessflow "github.com/amirphl/Uwabami/business_flow"
	"github.com/amirphl/Uwabami/config"
	"github.com/amirphl/Uwabami/repository"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Uwabami application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging redirects the process log to a rotated file when configured
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Output != "file" || cfg.FilePath == "" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	})
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, fmt.Errorf("cache must be enabled with the redis provider")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Redis connection established")
	return rc, nil
}

// initializeApplication wires repositories, services, flows, workers and the router
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Repositories
	providerRepo := repository.NewProviderRepository(db)
	activationRepo := repository.NewActivationRepository(db)
	smsRepo := repository.NewSmsMessageRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	txRepo := repository.NewWalletTransactionRepository(db)

	// Provider machinery
	registry := services.NewProviderRegistry(services.BreakerSettings{
		ErrorThresholdPercent: cfg.Broker.BreakerErrorThreshold,
		MinRequestVolume:      cfg.Broker.BreakerMinVolume,
		ResetTimeout:          cfg.Broker.BreakerResetTimeout,
		Window:                cfg.Broker.BreakerWindow,
	}, cfg.Broker.HealthWindowSize)
	healthMonitor := services.NewHealthMonitor(registry, rc, cfg.Broker.HealthSnapshotTTL)
	adapter := services.NewHTTPProviderAdapter(registry, cfg.Broker.CallTimeout)
	notifier := services.NewLogNotificationDispatcher()

	// Business flows
	walletFlow := businessflow.NewWalletFlow(db, walletRepo, txRepo, activationRepo, smsRepo)
	numberFlow := businessflow.NewNumberFlow(db, providerRepo, activationRepo, smsRepo,
		walletFlow, adapter, registry, healthMonitor, cfg.Broker.MaxFallbackProviders)

	// HTTP surface
	numberHandler := handlers.NewNumberHandler(numberFlow)
	walletHandler := handlers.NewWalletHandler(walletFlow)
	r := router.NewFiberRouter(cfg, numberHandler, walletHandler)

	app := &Application{
		router: r,
		config: cfg,
		server: r.GetApp(),
	}

	// Background workers
	poller := scheduler.NewStatusPoller(activationRepo, smsRepo, providerRepo, adapter, notifier, cfg.Poller)
	app.stopFuncs = append(app.stopFuncs, poller.Start(context.Background()))

	reconciler := scheduler.NewReconciler(activationRepo, providerRepo, walletFlow, adapter, rc, cfg.Reconciler)
	app.stopFuncs = append(app.stopFuncs, reconciler.Start(context.Background()))

	log.Println("Application initialized")
	return app, nil
}
