// Command server runs the pharmacy prospecting backend: the places relay,
// the search orchestrator SSE endpoint, the record-store API, the order feed
// sync, and the map/revenue views, all over a local SQLite store.
//
// @title       Pharma Prospecting API
// @version     1.0
// @description Pharmacy prospecting backend: places search orchestration, cached record store, order feed and revenue attribution.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/saludmaps/go-pharma-backend/docs"
	"github.com/saludmaps/go-pharma-backend/internal/config"
	httpapi "github.com/saludmaps/go-pharma-backend/internal/http"
	"github.com/saludmaps/go-pharma-backend/internal/observability"
	"github.com/saludmaps/go-pharma-backend/internal/orders"
	"github.com/saludmaps/go-pharma-backend/internal/places"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; in production the environment is the
	// source of truth and no .env file exists.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogger(cfg)

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	placesClient := places.NewClient(cfg.Places.APIKey, cfg.Places.BaseURL, cfg.Places.Timeout)
	wooClient := orders.NewClient(cfg.Woo.BaseURL, cfg.Woo.ConsumerKey, cfg.Woo.ConsumerSecret, cfg.Woo.Timeout, cfg.Woo.CacheTTL)
	if cfg.Places.APIKey == "" {
		log.Warn().Msg("PLACES_API_KEY not set; search and relay will reject requests")
	}
	if !wooClient.Configured() {
		log.Info().Msg("order feed not configured; /orders/refresh disabled")
	}

	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, placesClient, wooClient, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// setupLogger configures the global zerolog logger from config.
func setupLogger(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
