package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsCheckViolation checks if the error is a PostgreSQL check constraint violation (code 23514).
// The user_blocks table rejects self-blocks with one.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}
