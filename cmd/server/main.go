// Command server runs the clinic assistant API.
//
// Startup order:
//  1. Load .env (best effort) and the validated configuration
//  2. Configure zerolog and OpenTelemetry
//  3. Open the relational backend (Postgres in production, SQLite locally)
//     and run migrations
//  4. Construct the hosted-table client and wire the HTTP router
//  5. Serve until SIGINT/SIGTERM, then drain connections
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
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/caredesk/clinic-assistant/internal/config"
	httpapi "github.com/caredesk/clinic-assistant/internal/http"
	"github.com/caredesk/clinic-assistant/internal/jamai"
	"github.com/caredesk/clinic-assistant/internal/observability"
	"github.com/caredesk/clinic-assistant/internal/repo"
	"github.com/caredesk/clinic-assistant/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	table, err := jamai.NewClient(cfg.JamAI.APIKey, cfg.JamAI.ProjectID,
		jamai.WithHTTPClient(&http.Client{Timeout: cfg.JamAI.Timeout}),
		baseURLOption(cfg.JamAI.BaseURL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("jamai client init failed")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, table, cfg)

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
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openDatabase selects the backend: Postgres when DATABASE_URL is set,
// otherwise a local SQLite file.
func openDatabase(cfg config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL != "" {
		return repo.OpenPostgres(cfg.DatabaseURL)
	}
	return repo.OpenSQLite(cfg.DBPath)
}

// baseURLOption maps an optional base URL to a client option, keeping the
// hosted default when unset.
func baseURLOption(u string) jamai.Option {
	if u == "" {
		return jamai.WithBaseURL(jamai.DefaultBaseURL)
	}
	return jamai.WithBaseURL(u)
}
