package pkg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// https://www.postgresql.org/docs/current/errcodes-appendix.html

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsInvalidTextRepresentationError is returned by postgres when a value
// cannot be cast to the column type, e.g. a malformed uuid
func IsInvalidTextRepresentationError(err error) bool {
	return pgErrorCode(err) == "22P02"
}

// IsUndefinedTableError checks if the referenced table does not exist
func IsUndefinedTableError(err error) bool {
	return pgErrorCode(err) == "42P01"
}
