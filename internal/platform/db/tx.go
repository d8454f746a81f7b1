package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBTxKey carries the transaction opened by WithTx so that repositories
// participating in the same use case share it.
const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the transaction stashed by WithTx, or nil when the
// caller is not running inside one.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// TxFn runs fn as a single atomic unit. Services hold a TxFn instead of the
// pool so tests can substitute a passthrough.
type TxFn func(ctx context.Context, fn func(ctx context.Context) error) error

// NewTxFn binds WithTx to a pool.
func NewTxFn(pool *pgxpool.Pool) TxFn {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return WithTx(ctx, pool, fn)
	}
}

// WithTx runs fn inside a single database transaction. The transaction is
// made available to repositories through the context, so every repository
// call inside fn reads and writes the same snapshot. A non-nil error from fn
// rolls everything back.
//
// Nested calls reuse the outer transaction rather than opening a second one.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
