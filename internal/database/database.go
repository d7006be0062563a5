package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/liftlog-io/liftlog/internal/config"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" driver
	_ "github.com/lib/pq"              // "postgres" driver
	_ "github.com/mattn/go-sqlite3"    // "sqlite3" driver
)

// Dialect is the SQL flavour behind a DB handle.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

const sqliteParams = "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

// DB is a connection pool plus the dialect the store needs for placeholders.
type DB struct {
	*sql.DB
	Dialect Dialect
}

type target struct {
	driver  string
	dsn     string
	dialect Dialect
	path    string // sqlite file, empty for in-memory and servers
}

// parseURL maps a database URL to a driver. sqlite:///rel.db and
// sqlite:////abs.db follow the SQLAlchemy convention.
func parseURL(raw string) (target, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return target{}, fmt.Errorf("database url %q has no scheme", raw)
	}

	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" {
			return target{}, fmt.Errorf("database url %q has no path", raw)
		}
		path, query, _ := strings.Cut(rest, "?")
		dsn := path + "?" + sqliteParams
		if query != "" {
			dsn += "&" + query
		}
		t := target{driver: "sqlite3", dsn: dsn, dialect: DialectSQLite}
		if path != ":memory:" && !strings.HasPrefix(path, "file::memory:") {
			t.path = path
		}
		return t, nil
	case "postgres", "postgresql":
		return target{driver: "postgres", dsn: raw, dialect: DialectPostgres}, nil
	case "pgx":
		return target{driver: "pgx", dsn: "postgres://" + rest, dialect: DialectPostgres}, nil
	default:
		return target{}, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// Open connects to the database named by cfg.URL, applies pool settings and
// pings it. The caller owns the returned handle.
func Open(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*DB, error) {
	t, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	if t.path != "" {
		if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open(t.driver, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", t.driver, err)
	}

	if t.dialect == DialectSQLite {
		// One writer at a time; also keeps :memory: databases alive on a single connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", t.driver, err)
	}

	log.Info().Str("driver", t.driver).Str("dialect", string(t.dialect)).Msg("database connected")
	return &DB{DB: db, Dialect: t.dialect}, nil
}
