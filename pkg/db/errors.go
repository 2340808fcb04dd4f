package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When indexName is provided, the helper looks for the
// index text in the error message; otherwise it matches gorm's translated
// error plus the generic driver phrasing for SQLite and Postgres.
func IsUniqueViolation(err error, indexName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if indexName != "" {
		return strings.Contains(msg, indexName)
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
