// Package sqlxrepos implements the repositories on PostgreSQL, through sqlx.
package sqlxrepos

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// pgCode extracts the SQLSTATE of an error raised by either driver.
func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == uniqueViolation }

func isNoRows(err error) bool { return errors.Cause(err) == sql.ErrNoRows }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// contains builds an ILIKE pattern matching `s` anywhere.
func contains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func itoa(i int) string { return strconv.Itoa(i) }
