// Package dbsql provides a store.Driver on plain database/sql with OTEL
// instrumentation via otelsql.
//
// It serves the same Postgres schema as the sqlx driver but goes through the
// standard library interface only, which keeps it usable with any wrapper
// that expects a bare *sql.DB.
package dbsql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq" // postgres driver
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/store/postgres"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("dbsql", open)
}

// open is the store.Driver for the "dbsql" backend.
func open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &store.Repositories{
		Players: NewPlayerRepo(db, clk),
		Bans:    NewBanRepo(db, clk),
		Words:   NewWordRepo(db, clk),
		Chats:   NewChatRepo(db, clk),
		Events:  NewEventStore(db),
		Closer:  closerFunc(db.Close),
		Ping:    db.PingContext,
	}, nil
}

// Connect opens and verifies a Postgres connection via database/sql with
// OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN()

	db, err := otelsql.Open("postgres", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}
