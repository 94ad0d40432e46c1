package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload" // Automatically load .env file if present
	"go.uber.org/zap"

	"github.com/BulbaSwap/launch-pool/internal/api"
	"github.com/BulbaSwap/launch-pool/internal/config"
	"github.com/BulbaSwap/launch-pool/internal/ledger"
	applog "github.com/BulbaSwap/launch-pool/internal/logger"
	"github.com/BulbaSwap/launch-pool/internal/scheduler"
	"github.com/BulbaSwap/launch-pool/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	logger, err := applog.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Postgres when configured, sqlite otherwise.
	var dbService services.DBService
	if cfg.PostgresURL != "" {
		dbService, err = services.NewPostgresDBService(cfg.PostgresURL)
	} else {
		dbService, err = services.NewSqliteDBService(cfg.SqlitePath)
	}
	if err != nil {
		logger.Fatal("Failed to initialize database service", zap.Error(err))
	}
	defer dbService.Close()

	db := dbService.GetDB()
	accountLedger := ledger.NewLedger()
	eventService := services.NewEventService(db)
	factoryService := services.NewFactoryService(db, eventService)
	projectService := services.NewProjectService(db, accountLedger, eventService, logger)
	poolService := services.NewPoolService(db, accountLedger, eventService, logger)

	// Background scan for project windows crossing start or end.
	manager, err := scheduler.NewManager(db, eventService, logger, cfg.StatusJobInterval)
	if err != nil {
		logger.Fatal("Failed to initialize scheduler", zap.Error(err))
	}
	if err := manager.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	apiServer := api.NewAPIServer(factoryService, projectService, poolService, eventService, logger)
	startedPort, err := apiServer.Start(cfg.Port)
	if err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}
	logger.Info("API server started", zap.Int("port", startedPort))

	// Set up graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down server...")

	if err := apiServer.Shutdown(); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}
	if err := manager.Stop(); err != nil {
		logger.Error("Error stopping scheduler", zap.Error(err))
	}

	logger.Info("Server shut down successfully")
}
