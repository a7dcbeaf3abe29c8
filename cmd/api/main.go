package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pipeline/internal/artifact"
	"pipeline/internal/engine"
	"pipeline/internal/engine/bedrock"
	"pipeline/internal/engine/sdwebui"
	"pipeline/internal/events"
	"pipeline/internal/history"
	"pipeline/internal/http/handlers"
	"pipeline/internal/http/httpapi"
	"pipeline/internal/infra"
	"pipeline/internal/infra/geoip"
	"pipeline/internal/middleware"
	"pipeline/internal/pipeline"
	"pipeline/internal/preset"
)

// shutdownTimeout bounds how long in-flight requests and running jobs may
// delay process exit.
const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job history lives on the filesystem unless DATABASE_URL selects Postgres.
	var store history.Store
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		store, err = history.NewPostgresStore(ctx, infra.NewSQLRunner(dbpool, logger), logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare job history schema")
		}
		logger.Info().Msg("job history: postgres")
	} else {
		store, err = history.NewFileStore(cfg.JobsDir, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open job history store")
		}
		logger.Info().Str("dir", cfg.JobsDir).Msg("job history: filesystem")
	}

	artifacts, err := artifact.NewStore(cfg.ArtifactsDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open artifact store")
	}
	eventLog, err := events.NewLog(cfg.EventsDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open event log")
	}

	presets, err := preset.NewRegistry(cfg.PresetDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load preset catalog")
	}
	if cfg.WatchPresets {
		go func() {
			if err := presets.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("preset watcher stopped")
			}
		}()
	}

	engines := engine.NewRegistry()
	engines.Register(sdwebui.NewClient(sdwebui.Options{
		BaseURL:    cfg.SDWebUIBaseURL,
		ScratchDir: cfg.ScratchDir,
		Timeout:    cfg.EngineTimeout,
	}))
	if cfg.BedrockEnabled {
		// A missing AWS credential chain should not take the whole service
		// down; local generation keeps working without it.
		br, err := bedrock.NewClient(ctx, bedrock.Options{
			Region:     cfg.BedrockRegion,
			ModelID:    cfg.BedrockModelID,
			ScratchDir: cfg.ScratchDir,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("bedrock engine unavailable, continuing without it")
		} else {
			engines.Register(br)
		}
	}

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, country resolution disabled")
	} else if resolver != nil {
		defer resolver.Close()
		countryLookup = resolver.CountryCode
	}

	manager := pipeline.NewManager(pipeline.Options{
		Presets:       presets,
		Engines:       engines,
		History:       store,
		Artifacts:     artifacts,
		Events:        eventLog,
		Logger:        logger,
		DefaultEngine: cfg.DefaultEngine,
		EngineTimeout: cfg.EngineTimeout,
	})

	app := &handlers.App{
		Manager:   manager,
		Presets:   presets,
		Engines:   engines,
		Artifacts: artifacts,
		Events:    eventLog,
		Logger:    logger,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   countryLookup,
		SubmitRateLimit: cfg.RateLimitPerMin,
		SubmitRatePer:   time.Minute,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("jobs still running at shutdown deadline")
	}
	logger.Info().Msg("server stopped")
}
