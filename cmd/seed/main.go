package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"

	"formative-compliance/internal/config"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
	"formative-compliance/internal/infra/api"
	pg "formative-compliance/internal/infra/db/postgres"
	"formative-compliance/internal/infra/logging"
)

// seed grants a development user access and prints a bearer token for it. Grants go straight
// to Postgres, so a running API may serve the previous state until its cache TTL passes.
func main() {
	userID := flag.String("user", "dev-user", "user id to seed")
	email := flag.String("email", "dev@example.com.au", "email carried in the token")
	product := flag.String("product", "Starter", "product name to grant; empty skips the grant")
	access := flag.String("access", string(model.AccessTypeSubscription), "access type: subscription|one_time")
	ttl := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed token")

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *product != "" {
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()

		e, err := model.NewEntitlement(uuid.NewString(), *userID, *product, model.AccessType(*access), nil, time.Now())
		if err != nil {
			logger.Fatal().Err(err).Str("product", *product).Str("access", *access).Msg("build entitlement")
		}
		if err := pg.NewEntitlementRepo(pool).Grant(ctx, repository.NoTX, e); err != nil {
			logger.Fatal().Err(err).Msg("grant entitlement")
		}
		fmt.Printf("granted %q (%s, tier=%s) to %s\n", e.ProductName, e.AccessType, e.Tier, e.UserID)
	}

	tok, err := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, *ttl).Mint(*userID, *email)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint token")
	}
	fmt.Printf("Authorization: Bearer %s\n", tok)
}
