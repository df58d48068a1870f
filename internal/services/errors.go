package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFailed   = "unique constraint failed"
	genericDuplicateWord = "duplicate"
)

// isUniqueConstraintError reports whether err is a uniqueness violation, the
// signal that a concurrent writer already inserted the same token or
// preference row. Foreign-key and NOT NULL failures are not matched.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	// sqlite surfaces constraint failures as plain strings.
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, sqliteUniqueFailed) || strings.Contains(lower, genericDuplicateWord)
}
