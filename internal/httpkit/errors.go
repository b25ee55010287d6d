package httpkit

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsUndefinedTable reports whether err is PostgreSQL 42P01 (undefined_table).
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
