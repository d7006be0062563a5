// Package store persists users and workouts over database/sql. Queries are
// written with ? placeholders and rebound per dialect.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/liftlog-io/liftlog/internal/database"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs every store operation against one DBTX.
type Queries struct {
	db      DBTX
	dialect database.Dialect
}

// Store owns the pool. Its embedded Queries run outside any transaction.
type Store struct {
	*Queries
	db *database.DB
}

// New returns a Store over db, rebinding queries for its dialect.
func New(db *database.DB) *Store {
	return &Store{
		Queries: &Queries{db: db.DB, dialect: db.Dialect},
		db:      db,
	}
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back otherwise, including on panic, which is re-raised.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("db error: commit: %w", cerr)
		}
	}()

	return fn(&Queries{db: tx, dialect: s.dialect})
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (q *Queries) rebind(query string) string {
	if q.dialect != database.DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
