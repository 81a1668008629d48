package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/zfogg/listingboard/internal/config"
	"github.com/zfogg/listingboard/internal/kernel"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/seed"
	"go.uber.org/zap"
)

func main() {
	_ = logger.Initialize("info", "-")
	defer logger.Close()

	// Parse command
	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command != "dev" && command != "test" && command != "clean" {
		fmt.Println("Usage: seed [dev|test|clean]")
		fmt.Println("  dev   - Create fake listings and replay random interactions")
		fmt.Println("  test  - Create the fixed fixture listings and interactions")
		fmt.Println("  clean - Delete the fixture listings")
		fmt.Println()
		fmt.Println("SEED_VALUE fixes the random seed; SEED_INTERACTIONS overrides the dev traffic volume.")
		os.Exit(1)
	}

	cfg, err := config.LoadForTool()
	if err != nil {
		logger.FatalWithFields("Invalid configuration", err)
	}
	if cfg.LedgerStore == config.StoreMemory {
		logger.Log.Warn("LEDGER_STORE=memory: seeded data is lost when this command exits")
	}

	ctx := context.Background()
	k, err := kernel.Build(ctx, cfg)
	if err != nil {
		logger.FatalWithFields("Failed to initialize", err)
	}
	defer k.Cleanup(ctx)

	seedValue, _ := strconv.ParseUint(os.Getenv("SEED_VALUE"), 10, 64)
	seeder := seed.NewSeeder(k.Store(), k.Ledger(), seedValue)

	switch command {
	case "dev":
		opts := seed.DefaultOptions()
		if n, err := strconv.Atoi(os.Getenv("SEED_INTERACTIONS")); err == nil && n >= 0 {
			opts.Interactions = n
		}
		summary, err := seeder.SeedDev(ctx, opts)
		if err != nil {
			logger.FatalWithFields("Seeding failed", err)
		}
		if len(summary.Listings) > 0 {
			logger.Log.Info("Example listing", zap.String("ref", summary.Listings[0].String()))
		}
	case "test":
		if _, err := seeder.SeedTest(ctx); err != nil {
			logger.FatalWithFields("Seeding failed", err)
		}
		logger.Log.Info("Fixtures seeded")
	case "clean":
		if err := seeder.Clean(ctx, seed.FixtureRefs()); err != nil {
			logger.FatalWithFields("Clean failed", err)
		}
		logger.Log.Info("Fixtures removed")
	}
}
