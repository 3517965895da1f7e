package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beginTx(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock) *sql.Tx {
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return tx
}

func TestAccountStore_GetForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAccountStore()
	ctx := context.Background()

	t.Run("locks and returns an existing row", func(t *testing.T) {
		tx := beginTx(t, db, mock)

		mock.ExpectQuery(`SELECT id, balance FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance"}).AddRow(1, "250.75"))

		account, err := store.GetForUpdate(ctx, tx, 1)
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, int64(1), account.UserID)
		assert.True(t, account.Balance.Equal(decimal.RequireFromString("250.75")))
	})

	t.Run("missing row returns nil without error", func(t *testing.T) {
		tx := beginTx(t, db, mock)

		mock.ExpectQuery(`SELECT id, balance FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(42)).
			WillReturnError(sql.ErrNoRows)

		account, err := store.GetForUpdate(ctx, tx, 42)
		require.NoError(t, err)
		assert.Nil(t, account)
	})
}

func TestAccountStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAccountStore()
	ctx := context.Background()

	t.Run("inserts a zero-balance row", func(t *testing.T) {
		tx := beginTx(t, db, mock)

		mock.ExpectExec(`INSERT INTO users \(id, balance\) VALUES \(\$1, \$2\)`).
			WithArgs(int64(1), decimal.Zero).
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, store.Create(ctx, tx, 1, decimal.Zero))
	})

	t.Run("concurrent insert maps to ErrAccountExists", func(t *testing.T) {
		tx := beginTx(t, db, mock)

		mock.ExpectExec(`INSERT INTO users \(id, balance\) VALUES \(\$1, \$2\)`).
			WithArgs(int64(1), decimal.Zero).
			WillReturnError(&pq.Error{Code: "23505"})

		err := store.Create(ctx, tx, 1, decimal.Zero)
		assert.ErrorIs(t, err, ErrAccountExists)
	})
}

func TestAccountStore_SetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAccountStore()
	ctx := context.Background()
	balance := decimal.RequireFromString("99.99")

	t.Run("updates the locked row", func(t *testing.T) {
		tx := beginTx(t, db, mock)

		mock.ExpectExec(`UPDATE users SET balance = \$1 WHERE id = \$2`).
			WithArgs(balance, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.SetBalance(ctx, tx, 1, balance))
	})

	t.Run("zero rows affected is an error", func(t *testing.T) {
		tx := beginTx(t, db, mock)

		mock.ExpectExec(`UPDATE users SET balance = \$1 WHERE id = \$2`).
			WithArgs(balance, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.SetBalance(ctx, tx, 1, balance)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "disappeared")
	})
}
