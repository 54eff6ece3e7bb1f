package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/config"
	"github.com/mcdev12/courtside/go/internal/gateway"
	"github.com/mcdev12/courtside/go/internal/offline"
	"github.com/mcdev12/courtside/go/internal/scoreboard"
	"github.com/mcdev12/courtside/go/internal/web"
	"github.com/rs/zerolog/log"
)

type Services struct {
	App     *scoreboard.App
	Gateway *gateway.Service
	Web     *web.Handler

	store syncStore
	cache *offline.Cache
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Sync store → App → Gateway / Web
	clock := clockwork.NewRealClock()

	store, err := openSyncStore(ctx, cfg, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sync backend: %w", cfg.Sync.Backend, err)
	}
	services := &Services{store: store}

	opts := []scoreboard.Option{
		scoreboard.WithClock(clock),
		scoreboard.WithMaxPushAttempts(cfg.Sync.MaxPushAttempts),
	}
	if cfg.Offline.CachePath != "" {
		cache, err := offline.Open(cfg.Offline.CachePath, cfg.Sync.DocumentKey)
		if err != nil {
			// The board still works online without the cache
			log.Warn().Err(err).Str("path", cfg.Offline.CachePath).Msg("offline cache unavailable")
		} else {
			services.cache = cache
			opts = append(opts, scoreboard.WithCache(cache))
		}
	}

	services.App = scoreboard.NewApp(store, opts...)

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.Clock = clock
	services.Gateway = gateway.NewService(gatewayCfg, services.App)

	services.Web, err = web.NewHandler(services.App, clock)
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}
	return services, nil
}

// Close releases the sync connection and the offline cache
func (s *Services) Close() {
	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close sync backend")
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close offline cache")
		}
	}
}
