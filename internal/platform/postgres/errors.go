package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/bookings-api/internal/store"
)

// PostgreSQL error codes
const (
	// uniqueViolationCode is the PostgreSQL error code for unique constraint violations
	uniqueViolationCode = "23505"

	// foreignKeyViolationCode is the PostgreSQL error code for foreign key violations
	foreignKeyViolationCode = "23503"

	// checkViolationCode is the PostgreSQL error code for check constraint violations
	checkViolationCode = "23514"

	// notNullViolationCode is the PostgreSQL error code for not null violations
	notNullViolationCode = "23502"

	// queryCanceledCode is raised when statement_timeout fires or the query is cancelled
	queryCanceledCode = "57014"

	// tooManyConnectionsCode is raised when the server refuses new connections
	tooManyConnectionsCode = "53300"

	// adminShutdownCode and cannotConnectNowCode are raised while the server restarts
	adminShutdownCode    = "57P01"
	cannotConnectNowCode = "57P03"
)

// MapError maps a database error to the matching store error kind.
// It wraps the original error to preserve context for logs.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolationCode:
			return fmt.Errorf("%w: unique violation (%s): %v", store.ErrConflict, pgErr.ConstraintName, err)
		case pgErr.Code == foreignKeyViolationCode,
			pgErr.Code == checkViolationCode,
			pgErr.Code == notNullViolationCode:
			return fmt.Errorf("%w: constraint violation (%s): %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
		case pgErr.Code == queryCanceledCode:
			return fmt.Errorf("%w: %v", store.ErrTimeout, err)
		case pgErr.Code == tooManyConnectionsCode,
			pgErr.Code == adminShutdownCode,
			pgErr.Code == cannotConnectNowCode,
			strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	}

	if isConnectionError(err) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return err
}

// isConnectionError reports failures to reach the server at all.
func isConnectionError(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CheckRowsAffected examines the number of rows affected by a database operation.
// If no rows were affected, it returns store.ErrNotFound.
func CheckRowsAffected(result sql.Result, entityName string) error {
	if result == nil {
		return fmt.Errorf("nil result provided to CheckRowsAffected")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if entityName == "" {
			return store.ErrNotFound
		}
		return fmt.Errorf("%w: %s not found", store.ErrNotFound, entityName)
	}

	return nil
}
