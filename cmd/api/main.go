package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/liftlog-io/liftlog/internal/api"
	"github.com/liftlog-io/liftlog/internal/auth"
	"github.com/liftlog-io/liftlog/internal/config"
	"github.com/liftlog-io/liftlog/internal/database"
	"github.com/liftlog-io/liftlog/internal/logging"
	"github.com/liftlog-io/liftlog/internal/store"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// initializeAPI wires config, database, store and auth into an Api. The
// returned cleanup closes the database.
func initializeAPI(ctx context.Context, configPath string, logOut io.Writer) (*api.Api, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	log := logging.New(cfg.Log, logOut)
	log.Info().Str("version", version).Object("config", cfg).Msg("configuration loaded")
	if cfg.UsesDefaultSecret() {
		log.Warn().Msg("auth.secret_key is the development default; set SECRET_KEY in production")
	}

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { db.Close() }

	if err := database.Migrate(ctx, db, log); err != nil {
		cleanup()
		return nil, nil, err
	}

	st := store.New(db)
	hasher, err := auth.NewHasher(cfg.Auth)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	tokens, err := auth.NewTokenManager(cfg.Auth)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	svc, err := auth.NewService(st, hasher, tokens, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	a, err := api.NewApi(*cfg, svc, st, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fatal := zerolog.New(os.Stderr).With().Timestamp().Logger()

	a, cleanup, err := initializeAPI(ctx, *configPath, os.Stdout)
	if err != nil {
		fatal.Fatal().Err(err).Msg("failed to start")
	}
	defer cleanup()

	if err := a.Serve(ctx); err != nil {
		cleanup()
		fatal.Fatal().Err(err).Msg("server error")
	}
}
