package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func hasSQLState(err error, code string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return strings.Contains(err.Error(), code)
}

func isUniqueViolation(err error) bool {
	return hasSQLState(err, uniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasSQLState(err, foreignKeyViolation)
}
