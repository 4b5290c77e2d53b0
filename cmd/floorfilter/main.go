package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"floorfilter/internal/config"
	"floorfilter/internal/db"
	"floorfilter/internal/engine"
	"floorfilter/internal/httpapi"
	"floorfilter/internal/metrics"
	"floorfilter/internal/reloadworker"
	"floorfilter/internal/webmap"
)

// store is the dataset backend: a Postgres pool or a GeoPackage file.
type store interface {
	engine.Source
	httpapi.Pinger
}

type postgresStore struct {
	*db.TableSource
	*db.Pool
}

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := httpapi.NewLogger("info", httpapi.LogFormatJSON)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := httpapi.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var src store
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		ts, err := pool.Source(cfg.LevelsTable, cfg.FacilitiesTable)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid table names")
		}
		src = postgresStore{TableSource: ts, Pool: pool}
	} else {
		gpkg, err := db.OpenGeoPackage(ctx, cfg.GeoPackagePath, cfg.LevelsTable, cfg.FacilitiesTable)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open geopackage")
		}
		defer gpkg.Close()
		src = gpkg
	}

	host, err := webmap.Open(cfg.WebMapPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open web map")
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid layer identifiers")
	}
	m := metrics.New()
	opts.Metrics = m

	eng := engine.New(host, src, httpapi.Component(logger, "engine"), opts)
	if err := eng.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load floor filter")
	}
	defer func() {
		if err := eng.Restore(); err != nil {
			logger.Error().Err(err).Msg("failed to restore layer expressions")
		}
	}()

	if cfg.ReloadInterval > 0 {
		worker := reloadworker.New(httpapi.Component(logger, "reloadworker"), eng, reloadworker.Options{Interval: cfg.ReloadInterval})
		go worker.Run(ctx)
	}

	h := httpapi.NewHandler(httpapi.Component(logger, "httpapi"), eng, src, m).WithWebMap(host)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Bool("3d", cfg.Is3D()).Msg("floorfilter listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}
