// Command migrate applies the schema and checks the database is reachable,
// without starting the API.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/liftlog-io/liftlog/internal/config"
	"github.com/liftlog-io/liftlog/internal/database"
	"github.com/liftlog-io/liftlog/internal/logging"
	"github.com/liftlog-io/liftlog/internal/store"
)

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log, os.Stdout)

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, log); err != nil {
		return err
	}
	if err := store.New(db).Ping(ctx); err != nil {
		return err
	}

	log.Info().Msg("database is up to date")
	return nil
}

// reportFailure writes the final error as a structured log line.
func reportFailure(w io.Writer, err error) {
	log := logging.New(config.LogConfig{}, w)
	log.Error().Err(err).Msg("migration failed")
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	timeout := flag.Duration("timeout", time.Minute, "Give up after this long")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		reportFailure(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
