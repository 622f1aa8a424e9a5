package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ambulance-dispatch/internal/config"
	"github.com/example/ambulance-dispatch/internal/dispatch"
	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/hospitals"
	httpapi "github.com/example/ambulance-dispatch/internal/http"
	"github.com/example/ambulance-dispatch/internal/ingest"
	"github.com/example/ambulance-dispatch/internal/logging"
	"github.com/example/ambulance-dispatch/internal/notify"
	"github.com/example/ambulance-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql")); err == nil {
				if _, err := ps.DB().Exec(string(b)); err != nil {
					logger.Error("migration exec failed", "error", err)
					os.Exit(1)
				}
				logger.Info("migration applied", "file", "001_init.sql")
			} else {
				logger.Warn("migration file not readable", "error", err)
			}
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var index geo.FleetIndex
	if cfg.RedisAddr != "" {
		index = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		index = geo.NewIndex()
	}

	if cfg.GMapsAPIKey == "" {
		logger.Error("GMAPS_API_KEY is required for hospital lookups")
		os.Exit(1)
	}
	places, err := hospitals.NewGooglePlaces(cfg.GMapsAPIKey, cfg.PlacesTimeout)
	if err != nil {
		logger.Error("places client init failed", "error", err)
		os.Exit(1)
	}
	locator := hospitals.NewLocator(places, store)

	wsreg := notify.NewWSRegistry(index, cfg.NotifyRadiusMeters, cfg.NotifyMaxFanout, logger)
	dispatcher := dispatch.NewService(store, locator, wsreg, logger)

	var publisher ingest.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	}
	ing := ingest.NewService(store, publisher, index, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(dispatcher, ing, wsreg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ambulance-dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
