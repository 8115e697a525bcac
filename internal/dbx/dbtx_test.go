package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS users (user_id INTEGER PRIMARY KEY, status TEXT NOT NULL, partner_id INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (user_id, status) VALUES (1, 'searching'), (2, 'idle')`)
	require.NoError(t, err)
	return db
}

func pairedCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users WHERE status = 'paired'`).Scan(&n))
	return n
}

func pair(ctx context.Context, tx DBTX) error {
	if _, err := tx.ExecContext(ctx, `UPDATE users SET status = 'paired', partner_id = 2 WHERE user_id = 1`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE users SET status = 'paired', partner_id = 1 WHERE user_id = 2`)
	return err
}

func TestWithTx_CommitsBothSidesOnSuccess(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, pair)
	require.NoError(t, err)
	require.Equal(t, 2, pairedCount(t, db), "must commit on success")
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, pair(ctx, tx))
		return errors.New("boom")
	})
	require.Error(t, err)

	require.Equal(t, 0, pairedCount(t, db), "half-applied pairing must roll back")
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		require.Equal(t, 0, pairedCount(t, db), "must rollback on panic")
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, pair(ctx, tx))
		panic("kaput")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	require.Error(t, err, "begin should fail when DB is closed")
}

func TestWithTx_CommitErrorIsReturned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))

	err = WithTx(context.Background(), db, Serializable, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	require.EqualError(t, err, "could not serialize access")
	require.NoError(t, mock.ExpectationsWereMet())
}
