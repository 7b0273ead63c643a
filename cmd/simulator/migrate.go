package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/store"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create the PostgreSQL tables" }
func (*migrateCmd) Usage() string {
	return `simulator migrate

  Applies the schema to $DATABASE_URL. Safe to run repeatedly.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		return subcommands.ExitUsageError
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer pool.Close()

	if err := store.NewPostgresStore(pool).Migrate(ctx); err != nil {
		logger.Error("migration failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	logger.Info("schema applied")
	return subcommands.ExitSuccess
}
