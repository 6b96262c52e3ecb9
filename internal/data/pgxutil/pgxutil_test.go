package pgxutil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/data/pgxutil"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/testutil"
)

type row struct {
	N    int    `db:"n"`
	Name string `db:"name"`
}

func TestWithTx(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	t.Run("fn error rolls back and is returned unwrapped", func(t *testing.T) {
		sentinel := errors.New("stop")
		err := pgxutil.WithTx(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `CREATE TABLE pgxutil_rollback (n int)`)
			require.NoError(t, err)
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		var exists bool
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT to_regclass('pgxutil_rollback') IS NOT NULL`).Scan(&exists))
		assert.False(t, exists)
	})
}

func TestWithLockedTx(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	key := pgxutil.LockKey{Space: 9999, ID: 1}

	ran, err := pgxutil.WithLockedTx(ctx, db, key, func(pgx.Tx) error {
		inner, err := pgxutil.WithLockedTx(ctx, db, key, func(pgx.Tx) error {
			t.Fatal("lock must not be granted twice")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, inner)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = pgxutil.WithLockedTx(ctx, db, key, func(pgx.Tx) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran, "lock is released when the transaction ends")
}

func TestCollectOne(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	got, err := pgxutil.CollectOne[row](ctx, db, `SELECT $1::int AS n, $2::text AS name`, 7, "seven")
	require.NoError(t, err)
	assert.Equal(t, row{N: 7, Name: "seven"}, *got)

	_, err = pgxutil.CollectOne[row](ctx, db, `SELECT 1 AS n, 'x' AS name WHERE false`)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}
