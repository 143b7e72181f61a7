package sqldb

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"mindfulweb/internal/domain"
)

// ErrAcquisitionDone is returned by Acquisition.Next once its session has been handed out.
var ErrAcquisitionDone = errors.New("sqldb: acquisition already yielded its session")

// ErrSessionClosed is returned when a released session is used again.
var ErrSessionClosed = errors.New("sqldb: session is closed")

// mysql error numbers that signal a constraint violation.
var mysqlIntegrityErrors = map[uint16]bool{
	1048: true, // ER_BAD_NULL_ERROR
	1062: true, // ER_DUP_ENTRY
	1216: true, // ER_NO_REFERENCED_ROW
	1217: true, // ER_ROW_IS_REFERENCED
	1451: true, // ER_ROW_IS_REFERENCED_2
	1452: true, // ER_NO_REFERENCED_ROW_2
	3819: true, // ER_CHECK_CONSTRAINT_VIOLATED
}

// IsIntegrityViolation reports whether err is a unique, foreign-key, check or
// not-null violation from any supported driver.
func IsIntegrityViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrIntegrityViolation) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23" // integrity_constraint_violation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlIntegrityErrors[myErr.Number]
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// isDriverError reports whether err originates from database/sql or a driver.
func isDriverError(err error) bool {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrTxDone) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var pqErr *pq.Error
	var myErr *mysql.MySQLError
	var liteErr *sqlite.Error
	return errors.As(err, &pqErr) || errors.As(err, &myErr) || errors.As(err, &liteErr)
}

// classify tags driver errors with the domain markers so callers can branch
// with errors.Is. Errors that are already marked, or not driver errors, are
// returned unchanged.
func classify(err error) error {
	switch {
	case err == nil || domain.IsPersistence(err):
		return err
	case IsIntegrityViolation(err):
		return fmt.Errorf("%w: %w", domain.ErrIntegrityViolation, err)
	case isDriverError(err):
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return err
}
