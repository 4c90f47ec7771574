// Package sqlstore implements store.Store on database/sql. Queries are built
// with goqu for the postgres and sqlite3 dialects and run through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	_ "github.com/jackc/pgx/v5/stdlib"                  // "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // "postgres" driver
	_ "github.com/mattn/go-sqlite3" // "sqlite3" driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraryms/internal/store"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"
)

// Config selects the driver and connection for a Store.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Tx           store.TxConfig
}

// Store is a store.Store backed by a SQL database.
type Store struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	name    string
	cfg     store.TxConfig
	tracer  trace.Tracer
}

var _ store.Store = (*Store)(nil)

// DialectFor maps a driver name to its goqu dialect.
func DialectFor(driver string) (string, error) {
	switch driver {
	case DriverPostgres, DriverPgx:
		return dialectPostgres, nil
	case DriverSQLite:
		return dialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// SQLiteDSN builds a go-sqlite3 DSN for the database file at path with
// foreign keys on and write-locking transactions.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s, err := New(db.DB, cfg.Driver, cfg.Tx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection pool. driver selects the SQL dialect.
func New(db *sql.DB, driver string, cfg store.TxConfig) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:      sqlx.NewDb(db, driver),
		dialect: goqu.Dialect(dialect),
		name:    dialect,
		cfg:     cfg,
		tracer:  otel.Tracer("libraryms/sqlstore"),
	}, nil
}

// WithinTx runs fn in a database transaction, committing when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn store.TxFunc) error {
	return store.Run(ctx, s.cfg, func(ctx context.Context) error {
		ctx, span := s.tracer.Start(ctx, "sqlstore.tx",
			trace.WithAttributes(attribute.String("db.system", s.name)),
		)
		defer span.End()

		sqlTx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return s.fail(span, fmt.Errorf("begin transaction: %w", classify(err)))
		}
		defer sqlTx.Rollback()

		if err := fn(ctx, &tx{tx: sqlTx, d: s.dialect, returning: s.name == dialectPostgres}); err != nil {
			return s.fail(span, err)
		}
		if err := sqlTx.Commit(); err != nil {
			return s.fail(span, fmt.Errorf("commit transaction: %w", classify(err)))
		}
		return nil
	})
}

func (s *Store) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
