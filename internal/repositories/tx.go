package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxManager runs a unit of work in one database transaction.
type TxManager interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ex SQLExecutor) error) error
	// DB is used for reads that need no transaction.
	DB() SQLExecutor
}

type txManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) TxManager {
	return &txManager{db: db}
}

func (m *txManager) DB() SQLExecutor {
	return m.db
}

func (m *txManager) WithinTx(ctx context.Context, fn func(ex SQLExecutor) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateError(err, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateError(fmt.Errorf("commit: %w", err), "commit transaction")
	}
	return nil
}
