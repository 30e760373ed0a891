package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrDuplicateName = errors.New("file name already tracked")
	ErrNotFound      = errors.New("record not found")
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
