package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/example/clinic-pos/internal/config"
	"github.com/example/clinic-pos/internal/infrastructure/store"
	"github.com/example/clinic-pos/internal/receiving"
)

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info().Int("max_conns", cfg.DBMaxConns).Msg("connected to postgres")
		return store.NewPostgresStore(db, cfg.LockTimeout), nil
	case config.DriverDynamo:
		client, err := store.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, fmt.Errorf("dynamodb client: %w", err)
		}
		logger.Info().Str("table", cfg.DynamoTable).Str("region", cfg.AWSRegion).Msg("using dynamodb")
		return store.NewDynamoStore(client, cfg.DynamoTable), nil
	default:
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(cfg.LockTimeout), nil
	}
}

// seedFromFile loads a seed file into the store behind svc.
func seedFromFile(ctx context.Context, svc *receiving.Service, path string) (products, batches int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	seed, err := receiving.LoadSeed(f)
	if err != nil {
		return 0, 0, err
	}
	return svc.ApplySeed(ctx, seed)
}
