package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"stock-alert-service/config"
	"stock-alert-service/internal/alerts"
	"stock-alert-service/internal/api"
	"stock-alert-service/internal/database"
	"stock-alert-service/internal/email"
	"stock-alert-service/internal/finnhub"
	"stock-alert-service/internal/logging"
	"stock-alert-service/internal/marketdata"
	"stock-alert-service/internal/refresh"
	"stock-alert-service/internal/sectors"
	"stock-alert-service/internal/stream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Starting stock alert service")

	// Database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.RunMigrations(migrateCtx); err != nil {
		cancelMigrate()
		logger.Fatal("Failed to run migrations", "error", err)
	}
	cancelMigrate()
	logger.Info("Database ready")

	repo := database.NewRepository(db)
	repo.MaxAlertsPerUser = cfg.AlertsConfig.MaxAlertsPerUser

	// Market data cache (degrades gracefully if Redis is down)
	cache := marketdata.NewCache(
		fmt.Sprintf("%s:%d", cfg.RedisConfig.Host, cfg.RedisConfig.Port),
		cfg.RedisConfig.Password,
		cfg.RedisConfig.DB,
		cfg.RedisConfig.PoolSize,
	)
	defer cache.Close()

	// Upstream vendor client and shared snapshot loader
	client := finnhub.NewClient(cfg.FinnhubConfig.APIKey, cfg.FinnhubConfig.BaseURL)
	loader := marketdata.NewSnapshotLoader(cache, client)

	// Email
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPConfig.Host,
		Port:     cfg.SMTPConfig.Port,
		Username: cfg.SMTPConfig.Username,
		Password: cfg.SMTPConfig.Password,
		From:     cfg.SMTPConfig.From,
		FromName: cfg.SMTPConfig.FromName,
	})
	if !mailer.Configured() {
		logger.Warn("SMTP not configured, alert emails will not be delivered")
	}

	// Background loops
	streamer := stream.NewStreamer(cfg.FinnhubConfig.WSURL, cfg.FinnhubConfig.APIKey, cache, repo)

	refreshHour, refreshMinute, _ := config.ParseDailyTime(cfg.RefreshConfig.DailyTime)
	refresher := refresh.NewRefresher(repo, client, cache, refreshHour, refreshMinute)

	engine := alerts.NewEngine(repo, loader, mailer, cfg.AlertsConfig.CheckInterval)

	sectorLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	sectorEval := sectors.NewEvaluator(repo, loader, cfg.AlertsConfig.CheckInterval, sectorLogger)

	// Status HTTP server
	server := api.NewServer(api.Config{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
	}, api.Deps{
		Repo:        repo,
		Cache:       cache,
		Client:      client,
		Streamer:    streamer,
		AlertEngine: engine,
		SectorEval:  sectorEval,
		Refresher:   refresher,
	})

	streamer.Start()
	refresher.Start()
	engine.Start()
	sectorEval.Start()
	server.Start()

	logger.Info("All components started",
		"check_interval", cfg.AlertsConfig.CheckInterval.String(),
		"daily_refresh", cfg.RefreshConfig.DailyTime,
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Status server shutdown error", "error", err)
	}
	engine.Stop()
	sectorEval.Stop()
	refresher.Stop()
	streamer.Stop()

	logger.Info("Shutdown complete")
}
