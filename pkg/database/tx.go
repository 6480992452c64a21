package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Querier is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// WithTx runs fn inside a transaction carried by the returned context.
// Repositories pick it up through Q, so every statement issued by fn joins
// the same unit of work. A nested call reuses the outer transaction.
//
// The transaction sets a local lock_timeout so a blocked SELECT ... FOR UPDATE
// fails with 55P03 instead of waiting forever; MapPQError turns that into a
// ConcurrencyConflict the service layer retries.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if db.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", db.lockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to set lock_timeout: %w", err)
			}
		}

		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Q returns the transaction bound to ctx, or the pool when there is none.
func (db *DB) Q(ctx context.Context) Querier {
	if tx := getTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	return getTx(ctx) != nil
}

func getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
