package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("requested record not found")

	// ErrDatabaseError is returned for unexpected database errors.
	ErrDatabaseError = errors.New("database error")

	// ErrDuplicateKey is returned when an insert/update violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key value violates unique constraint")

	// ErrLockConflict is returned when a row lock or serializable snapshot could not be obtained.
	ErrLockConflict = errors.New("row is locked by a concurrent transaction")
)

// SQLExecutor is satisfied by *sqlx.DB and *sqlx.Tx, so repository methods run inside or outside a transaction.
type SQLExecutor interface {
	sqlx.ExtContext
}

// stmtBuilder picks the placeholder style of the executor's driver.
func stmtBuilder(ex SQLExecutor) sq.StatementBuilderType {
	if ex.DriverName() == "postgres" {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// lockRow appends FOR UPDATE where the driver supports row locks. SQLite serializes writers instead.
func lockRow(ex SQLExecutor, q sq.SelectBuilder, forUpdate bool) sq.SelectBuilder {
	if forUpdate && ex.DriverName() == "postgres" {
		return q.Suffix("FOR UPDATE")
	}
	return q
}

// fields returns the comma separated db columns of a struct, skipping `db:"-"`.
func fields(data any) string {
	var cols []string
	r := reflect.TypeOf(data)
	for i := 0; i < r.NumField(); i++ {
		tag := r.Field(i).Tag.Get("db")
		if tag != "" && tag != "-" {
			cols = append(cols, tag)
		}
	}
	return strings.Join(cols, ",")
}

// translateError maps driver errors onto the package sentinels.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s: %s", ErrDuplicateKey, op, pqErr.Constraint)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s: %v", ErrLockConflict, op, pqErr.Message)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrDuplicateKey, op)
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %s", ErrLockConflict, op)
		}
	}

	return fmt.Errorf("%w: %s: %v", ErrDatabaseError, op, err)
}

func buildError(err error, op string) error {
	return fmt.Errorf("%w: build %s query: %v", ErrDatabaseError, op, err)
}
