package main

import (
	"fmt"
	"os"

	"github.com/zfogg/listingboard/internal/config"
	"github.com/zfogg/listingboard/internal/database"
	"github.com/zfogg/listingboard/internal/logger"
	"go.uber.org/zap"
)

func main() {
	_ = logger.Initialize("info", "-")
	defer logger.Close()

	// Parse command
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp()
	case "check":
		checkConnection()
	default:
		fmt.Println("Usage: migrate [up|check]")
		fmt.Println("  up    - Create or update the listings table and its indexes")
		fmt.Println("  check - Verify the database is reachable")
		os.Exit(1)
	}
}

func connect() *config.Config {
	cfg, err := config.LoadForTool()
	if err != nil {
		logger.FatalWithFields("Invalid configuration", err)
	}
	logger.Log.Info("Connecting to database...")
	if err := database.Initialize(cfg.DatabaseURL, !cfg.IsProduction()); err != nil {
		logger.FatalWithFields("Failed to connect to database", err)
	}
	return cfg
}

func runMigrationsUp() {
	connect()
	defer database.Close()

	logger.Log.Info("Running migrations...")
	if err := database.Migrate(database.DB); err != nil {
		logger.FatalWithFields("Migration failed", err)
	}
	logger.Log.Info("All migrations completed successfully")
}

func checkConnection() {
	connect()
	defer database.Close()

	if err := database.Health(database.DB); err != nil {
		logger.FatalWithFields("Database unhealthy", err)
	}
	var listings int64
	if err := database.DB.Table("listings").Count(&listings).Error; err != nil {
		logger.FatalWithFields("Listings table missing, run `migrate up`", err)
	}
	logger.Log.Info("Database healthy", zap.Int64("listings", listings))
}
