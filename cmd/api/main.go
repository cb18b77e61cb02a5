package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glacierguard-api/config"
	"glacierguard-api/handlers"
	"glacierguard-api/logger"
	"glacierguard-api/models"
	"glacierguard-api/services"
	"glacierguard-api/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "glacierguard-api",
	})
	log := logger.Get()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to connect to database")
	}
	defer store.Close(db)

	detections := store.New(db)
	if err := detections.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate detections")
	}
	if err := db.WithContext(ctx).AutoMigrate(&models.User{}); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate users")
	}

	cache, err := services.NewCacheService(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without cache and live feed")
	}
	defer cache.Close()

	router := handlers.NewRouter(handlers.RouterDeps{
		Config: cfg,
		Store:  detections,
		Health: detections,
		DB:     db,
		Cache:  cache,
		Auth:   services.NewAuthService(cfg.JWT),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("driver", cfg.Database.Driver).Msg("starting server")
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
