package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations
var migrations embed.FS

func gooseDialect(d Dialect) (goose.Dialect, error) {
	switch d {
	case DialectSQLite:
		return goose.DialectSQLite3, nil
	case DialectPostgres:
		return goose.DialectPostgres, nil
	}
	return "", fmt.Errorf("no migrations for dialect %q", d)
}

// Migrate brings the schema up to date. Every statement is idempotent, so
// running it against a database created by hand is safe.
func Migrate(ctx context.Context, db *DB, log zerolog.Logger) error {
	dialect, err := gooseDialect(db.Dialect)
	if err != nil {
		return err
	}

	fsys, err := fs.Sub(migrations, "migrations/"+string(db.Dialect))
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		log.Info().
			Int64("version", r.Source.Version).
			Str("file", r.Source.Path).
			Dur("duration", r.Duration).
			Msg("migration applied")
	}
	return nil
}
