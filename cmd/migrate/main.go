package main

import (
	"context"
	"time"

	"formative-compliance/internal/config"
	pg "formative-compliance/internal/infra/db/postgres"
	"formative-compliance/internal/infra/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	logger.Info().Msg("schema applied")
}
