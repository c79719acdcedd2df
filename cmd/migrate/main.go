// Command migrate applies the embedded PostgreSQL migrations.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"decivue/infrastructure/config"
	"decivue/infrastructure/di"
	"decivue/infrastructure/persistence/postgres"

	"go.uber.org/zap"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (defaults to DATABASE_URL)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dsn == "" {
		*dsn = cfg.Storage.PostgresDSN
	}
	if *dsn == "" {
		log.Fatal("No DSN: pass -dsn or set DATABASE_URL")
	}

	logger, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := postgres.Open(ctx, *dsn, postgres.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		logger.Fatal("Failed to connect", zap.Error(err))
	}
	defer db.Close()

	applied, err := postgres.Migrate(ctx, db, logger)
	if err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
	logger.Info("Migrations complete", zap.Strings("applied", applied))
}
