package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/disciplinary/internal/store"
)

// mapPostgresError maps PostgreSQL-specific errors to the store error taxonomy.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
			return fmt.Errorf("%w: %w", store.ErrTransient, err)
		}
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		// Another transaction inserted the same (path, id) after our read
		return fmt.Errorf("%w: unique constraint violation: %s: %w", store.ErrConflict, pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation, pgerrcode.InvalidTextRepresentation:
		return fmt.Errorf("%w: %s: %w", store.ErrInvalidArgument, pgErr.Message, err)

	case pgerrcode.InsufficientPrivilege:
		return fmt.Errorf("%w: %s: %w", store.ErrPermissionDenied, pgErr.Message, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return fmt.Errorf("%w: transaction conflict: %w", store.ErrTransient, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("%w: database connection error: %w", store.ErrTransient, err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("%w: database server unavailable: %w", store.ErrTransient, err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("%w: query canceled: %w", store.ErrTransient, err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("%w: database resource limit: %w", store.ErrTransient, err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
