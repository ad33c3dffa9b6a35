package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/02loveslollipop/patio/internal/cache"
	"github.com/02loveslollipop/patio/internal/logging"
	"github.com/02loveslollipop/patio/services/api/config"
	"github.com/02loveslollipop/patio/services/api/db"
	httpserver "github.com/02loveslollipop/patio/services/api/http"
	"github.com/02loveslollipop/patio/services/api/profile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("config error")
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Error().Err(err).Msg("db connection error")
		os.Exit(1)
	}
	defer store.Close()

	opts := profile.Options{Location: cfg.Location(), PageSize: cfg.PageSize}
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			logging.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("profile cache disabled")
		} else {
			defer rdb.Close()
			opts.Cache = cache.NewProfiles(rdb, cfg.ProfileCacheTTL)
			logging.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.ProfileCacheTTL).Msg("profile cache enabled")
		}
	}

	srv := httpserver.New(cfg, profile.New(store, opts), store)
	logging.Info().Str("addr", cfg.ListenAddr()).Str("timezone", cfg.ShopTimezone).Msg("REST API listening")

	if err := srv.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}
