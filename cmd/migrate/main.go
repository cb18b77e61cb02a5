package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"glacierguard-api/config"
	"glacierguard-api/logger"
	"glacierguard-api/models"
	"glacierguard-api/store"
)

func main() {
	withUsers := flag.Bool("users", true, "Also migrate the users table")
	timeout := flag.Duration("timeout", time.Minute, "Migration timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "glacierguard-migrate"})
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close(db)

	if err := store.New(db).Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate detections")
	}
	if *withUsers {
		if err := db.WithContext(ctx).AutoMigrate(&models.User{}); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate users")
		}
	}

	log.Info().Str("driver", cfg.Database.Driver).Bool("users", *withUsers).Msg("migration complete")
}
