// Package testbackend opens throwaway stores for service tests.
package testbackend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"libraryms/internal/store"
	"libraryms/internal/store/memstore"
	"libraryms/internal/store/sqlstore"
)

// Backend is a named store factory.
type Backend struct {
	Name string
	Open func(t *testing.T) store.Store
}

// All returns the in-memory and the sqlite backend.
func All() []Backend {
	return []Backend{
		{Name: "memstore", Open: Memory},
		{Name: "sqlite", Open: func(t *testing.T) store.Store { return SQLite(t) }},
	}
}

// Memory returns an empty in-memory store.
func Memory(t *testing.T) store.Store {
	return memstore.New(store.DefaultTxConfig())
}

// SQLite returns a migrated sqlite store in a temporary directory.
func SQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := sqlstore.SQLiteDSN(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, sqlstore.Migrate(sqlstore.DriverSQLite, dsn))

	s, err := sqlstore.Open(context.Background(), sqlstore.Config{
		Driver: sqlstore.DriverSQLite,
		DSN:    dsn,
		Tx:     store.DefaultTxConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
