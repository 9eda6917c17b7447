package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/config"
	"github.com/mossy-p/storefront-realtime/internal/api"
	"github.com/mossy-p/storefront-realtime/internal/auth"
	"github.com/mossy-p/storefront-realtime/internal/dispatch"
	"github.com/mossy-p/storefront-realtime/internal/gateway"
	"github.com/mossy-p/storefront-realtime/internal/registry"
	"github.com/mossy-p/storefront-realtime/internal/signaling"
	"github.com/mossy-p/storefront-realtime/internal/store"
	syncengine "github.com/mossy-p/storefront-realtime/internal/sync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Environment != "production" {
		logger = logger.Level(zerolog.DebugLevel)
	}

	st, err := store.NewRedis(cfg.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer func() { _ = st.Close() }()
	logger.Info().Msg("redis connection established")

	reg := registry.New(logger)
	d := dispatch.New(reg, logger)
	relay := signaling.NewRelay(reg, logger)

	engine, err := syncengine.NewEngine(cfg.Sync, st, d, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build change sync engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start change sync engine")
	}
	defer engine.Stop()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	gw := gateway.New(verifier, st, reg, relay, engine, logger)
	router := api.NewRouter(cfg, gw, d, logger)

	logger.Info().Str("port", cfg.Port).Str("syncMode", cfg.Sync.Mode).
		Msg("starting realtime coordination server")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
