package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Constraint kinds reported by ConstraintKind.
const (
	KindUnique     = "unique"
	KindForeignKey = "foreign key"
	KindCheck      = "check"
	KindNotNull    = "not null"
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlBadNull                = 1048
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return ConstraintKind(err) != ""
}

// ConstraintKind returns the kind of constraint the error violated, or an
// empty string when err is not a constraint violation.
func ConstraintKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsUniqueConstraintError(err):
		return KindUnique
	case IsForeignKeyConstraintError(err):
		return KindForeignKey
	case IsCheckConstraintError(err):
		return KindCheck
	case IsNotNullConstraintError(err):
		return KindNotNull
	}
	return ""
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok {
		return code == pgUniqueViolation
	}
	if num, ok := mysqlNumber(err); ok {
		return num == mysqlDuplicateEntry
	}
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL (string fallback)
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok {
		return code == pgForeignKeyViolation
	}
	if num, ok := mysqlNumber(err); ok {
		return num == mysqlForeignKeyParent || num == mysqlForeignKeyChild
	}
	return containsAny(err.Error(),
		"Error 1451",
		"Error 1452",
		"violates foreign key constraint",
		"FOREIGN KEY constraint failed",
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok {
		return code == pgCheckViolation
	}
	if num, ok := mysqlNumber(err); ok {
		return num == mysqlCheckConstraintViolate
	}
	return containsAny(err.Error(),
		"Error 3819",
		"violates check constraint",
		"CHECK constraint failed",
	)
}

// IsNotNullConstraintError reports if the error resulted from writing NULL
// into a NOT NULL column.
func IsNotNullConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok {
		return code == pgNotNullViolation
	}
	if num, ok := mysqlNumber(err); ok {
		return num == mysqlBadNull
	}
	return containsAny(err.Error(),
		"Error 1048",
		"violates not-null constraint",
		"NOT NULL constraint failed",
	)
}

// pgCode extracts the SQLSTATE from lib/pq and pgx errors.
func pgCode(err error) (string, bool) {
	if e, ok := asError[*pq.Error](err); ok {
		return string(e.Code), true
	}
	if e, ok := asError[*pgconn.PgError](err); ok {
		return e.Code, true
	}
	return "", false
}

// mysqlNumber extracts the server error number from go-sql-driver errors.
func mysqlNumber(err error) (uint16, bool) {
	if e, ok := asError[*mysql.MySQLError](err); ok {
		return e.Number, true
	}
	return 0, false
}

// asError attempts to extract an error of type T from the error chain.
func asError[T error](err error) (T, bool) {
	var target T
	if errors.As(err, &target) {
		return target, true
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
