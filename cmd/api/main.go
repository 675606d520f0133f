// Package main provides the entrypoint for the SafeRoute API server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/auth"
	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/dataset"
	"github.com/saferoute/saferoute/internal/planner"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/routing/openrouteservice"
	"github.com/saferoute/saferoute/internal/telemetry"
	"github.com/saferoute/saferoute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := cfg.Log.NewLogger(os.Stdout).
		With().
		Str("service", cfg.Telemetry.ServiceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Server.Environment).
		Msg("starting SafeRoute API")

	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, cfg.TelemetryConfig(Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	instruments, err := telemetry.NewInstruments(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize instruments")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Crime dataset
	parser, err := cfg.Parser(log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create parser")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load dataset timezone")
	}

	var repo crime.Repository
	if cfg.Dataset.Source == dataset.SourcePostgres {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
		repo = crime.NewPostgresRepository(pool, loc)
	}

	source, err := dataset.NewSource(cfg.Dataset.Source, cfg.Dataset.Path, parser, repo)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid dataset source")
	}

	store := dataset.NewStore(dataset.StoreConfig{
		Source:      source,
		CellSize:    cfg.Dataset.GridCellSizeDegrees,
		Instruments: instruments,
		Logger:      log,
	})

	reloadJob := worker.NewReloadJob(worker.ReloadJobConfig{
		Config: worker.ReloadConfig{Interval: cfg.Dataset.ReloadInterval},
		Store:  store,
		Logger: log.With().Str("component", "reload").Logger(),
	})

	// The service never starts without a dataset.
	if _, err := reloadJob.Run(ctx); err != nil {
		log.Fatal().Err(err).Str("source", source.Name()).Msg("failed to load crime dataset")
	}

	// Directions provider
	registry := resilience.NewRegistry()
	if cfg.Routing.ORSAPIKey == "" {
		log.Warn().Msg("ORS API key not configured, routes:compute and address lookup will fail")
	}
	orsClient := openrouteservice.NewClient(openrouteservice.ClientConfig{
		APIKey:          cfg.Routing.ORSAPIKey,
		BaseURL:         cfg.Routing.ORSBaseURL,
		Timeout:         cfg.Routing.Timeout,
		Retries:         cfg.Routing.Retries,
		BreakerCooldown: cfg.Routing.BreakerCooldown,
		Registry:        registry,
		GeocodeCountry:  cfg.Routing.GeocodeCountry,
		Logger:          log,
	})
	routingService := routing.NewService(routing.ServiceConfig{
		Provider:        orsClient,
		Logger:          log,
		CacheTTL:        cfg.Routing.CacheTTL,
		StaleIfErrorTTL: cfg.Routing.StaleTTL,
		Instruments:     instruments,
	})

	ranker, err := ranking.NewRanker(ranking.Config{
		Scoring:     cfg.ScoringConfig(),
		Weights:     cfg.RankingWeights(),
		Workers:     cfg.Ranking.Workers,
		Instruments: instruments,
		Logger:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ranking configuration")
	}

	routePlanner := planner.New(planner.Config{
		Directions:           routingService,
		Geocoder:             orsClient,
		Store:                store,
		Ranker:               ranker,
		Dedup:                cfg.DedupConfig(),
		Profile:              routing.RouteProfile(cfg.Routing.Profile),
		MaxAlternatives:      cfg.Routing.MaxAlternatives,
		DetourScoreThreshold: cfg.Dedup.DetourScoreThreshold,
		DetourOffsetMeters:   cfg.Dedup.DetourOffsetMeters,
		Logger:               log,
		Location:             loc,
	})

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.JWTSigningKey,
		Issuer:     cfg.Auth.Issuer,
	})
	if !jwtService.Enabled() {
		log.Warn().Msg("JWT signing key not configured, admin endpoints are disabled")
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go reloadJob.Start(workerCtx)

	if cfg.PubSub.Enabled {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.SubscriptionID,
			ReloadJob:        reloadJob,
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	standardLimit := middleware.PerMinute(cfg.Server.RateLimit)

	router := api.NewRouter(api.RouterConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Logger:            log,
		Metrics:           metrics,
		Planner:           routePlanner,
		Snapshots:         store,
		Reloader:          reloadJob,
		Tokens:            jwtService,
		Providers:         registry,
		RequireTLS:        cfg.Server.RequireTLS,
		StandardRateLimit: &standardLimit,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	cache := routingService.Stats()
	log.Info().
		Fields(reloadJob.StatsSnapshot()).
		Int("directions_fresh", cache.Fresh).
		Int("directions_stale", cache.Stale).
		Msg("server stopped")
}
