package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign key violation (SQLSTATE 23503).
func IsForeignKeyViolation(err error) bool {
	return hasSQLState(err, "23503")
}

// IsUniqueViolation reports whether err is a unique constraint violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	return hasSQLState(err, "23505")
}

// IsCheckViolation reports whether err is a CHECK constraint violation (SQLSTATE 23514).
func IsCheckViolation(err error) bool {
	return hasSQLState(err, "23514")
}

// IsSerializationFailure reports whether err is a serialization failure (SQLSTATE 40001).
func IsSerializationFailure(err error) bool {
	return hasSQLState(err, "40001")
}

// IsConnectionError reports whether err means the database could not be reached.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

func hasSQLState(err error, code string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == code
	}

	return false
}
