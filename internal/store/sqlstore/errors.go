package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"libraryms/internal/store"
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// classify wraps driver errors with the matching store sentinel so callers
// can use errors.Is without knowing the driver.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}
	if sentinel := sentinelFor(err); sentinel != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

func sentinelFor(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgSentinel(string(pqErr.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgSentinel(pgErr.Code)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return store.ErrDuplicate
		case liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return store.ErrNotFound
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return store.ErrConflict
		}
	}
	return nil
}

func pgSentinel(code string) error {
	switch code {
	case pgUniqueViolation:
		return store.ErrDuplicate
	case pgForeignKeyViolation:
		return store.ErrNotFound
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return store.ErrConflict
	}
	return nil
}
