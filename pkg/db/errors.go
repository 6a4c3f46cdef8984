package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateCheckViolation       = "23514"
)

// IsRetryableTx reports whether a transaction lost a serialization race or a
// deadlock and can be replayed from the start.
func IsRetryableTx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// IsCheckViolation reports a CHECK constraint failure, optionally for a
// specific constraint such as products_stock_nonnegative.
func IsCheckViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != sqlStateCheckViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
