package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/cloudsync"
	"github.com/mcdev12/courtside/go/internal/config"
	"github.com/mcdev12/courtside/go/internal/dbconfig"
	"github.com/mcdev12/courtside/go/internal/scoreboard"
	"github.com/rs/zerolog/log"
)

// syncStore is a SyncRepository that holds a connection
type syncStore interface {
	scoreboard.SyncRepository
	Close() error
}

func openSyncStore(ctx context.Context, cfg config.Config, clock clockwork.Clock) (syncStore, error) {
	key := cfg.Sync.DocumentKey

	switch cfg.Sync.Backend {
	case config.BackendNATS:
		natsCfg := cloudsync.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Bucket = cfg.NATS.Bucket
		natsCfg.Key = key
		return cloudsync.NewNATSStore(ctx, natsCfg)

	case config.BackendPostgres:
		dbCfg, err := dbconfig.NewConfigFromEnv()
		if err != nil {
			return nil, err
		}
		pgCfg := cloudsync.DefaultPostgresConfig()
		pgCfg.DatabaseURL = dbCfg.DSN()
		pgCfg.Key = key

		log.Info().
			Str("host", dbCfg.Host).
			Str("database", dbCfg.Database).
			Msg("connecting to postgres")
		return cloudsync.NewPostgresStore(ctx, pgCfg)

	case config.BackendDynamoDB:
		client, err := cloudsync.NewDynamoClient(ctx, cfg.DynamoDB.Region)
		if err != nil {
			return nil, err
		}
		dynamoCfg := cloudsync.DefaultDynamoConfig()
		dynamoCfg.Region = cfg.DynamoDB.Region
		dynamoCfg.Table = cfg.DynamoDB.Table
		dynamoCfg.PollInterval = cfg.DynamoDB.PollInterval
		dynamoCfg.Key = key
		return cloudsync.NewDynamoStore(client, clock, dynamoCfg), nil

	case config.BackendMemory:
		log.Warn().Msg("using in-memory sync backend, the board is not shared")
		return cloudsync.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown sync backend %q", cfg.Sync.Backend)
}
