// Package pgxutil runs pgx connections and transactions on top of a database/sql pool
// opened with the pgx stdlib driver.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNotPgx is returned when the pool was not opened with the pgx stdlib driver.
var ErrNotPgx = errors.New("driver connection is not *stdlib.Conn")

// LockKey names a two-key transaction-scoped advisory lock.
type LockKey struct {
	Space int32
	ID    int32
}

// WithConn pins one pool connection and hands fn its underlying *pgx.Conn.
func WithConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return ErrNotPgx
		}
		return fn(std.Conn())
	})
}

// WithTx runs fn in a pgx transaction. fn's error is returned as is after rollback.
func WithTx(ctx context.Context, db *sql.DB, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return WithConn(ctx, db, func(conn *pgx.Conn) error {
		return pgx.BeginTxFunc(ctx, conn, opts, fn)
	})
}

// WithLockedTx runs fn in a transaction that holds key. When another session
// holds the lock fn is skipped and WithLockedTx reports false.
func WithLockedTx(ctx context.Context, db *sql.DB, key LockKey, fn func(pgx.Tx) error) (bool, error) {
	var ran bool
	err := WithTx(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked bool
		if err := tx.QueryRow(ctx,
			"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", key.Space, key.ID,
		).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock %d/%d: %w", key.Space, key.ID, err)
		}
		if !locked {
			return nil
		}
		ran = true
		return fn(tx)
	})
	return ran, err
}

// CollectOne runs query on a pooled connection and scans the single row into T by column name.
// It returns pgx.ErrNoRows when the query matches nothing.
func CollectOne[T any](ctx context.Context, db *sql.DB, query string, args ...any) (*T, error) {
	var out *T
	err := WithConn(ctx, db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		v, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
		if err != nil {
			return err
		}
		out = &v
		return nil
	})
	return out, err
}
