package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/models"
)

// ErrAccountExists is returned by Create when the row is already present,
// including when a concurrent transaction won the insert race.
var ErrAccountExists = errors.New("account already exists")

const pqUniqueViolation = "23505"

// AccountStore reads and writes user balance rows. Every method runs inside
// the caller's transaction and never commits on its own.
type AccountStore struct{}

func NewAccountStore() *AccountStore {
	return &AccountStore{}
}

// GetForUpdate takes an exclusive row lock on the account and returns its
// current state. A nil account with nil error means the row does not exist
// (and no lock is held).
func (s *AccountStore) GetForUpdate(ctx context.Context, tx *sql.Tx, userID int64) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT id, balance FROM users
		WHERE id = $1
		FOR UPDATE`, userID).Scan(&account.UserID, &account.Balance)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *AccountStore) Create(ctx context.Context, tx *sql.Tx, userID int64, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, balance)
		VALUES ($1, $2)`, userID, balance)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return ErrAccountExists
	}
	return err
}

// SetBalance overwrites the stored balance. Callers must hold the row lock
// from GetForUpdate in the same transaction.
func (s *AccountStore) SetBalance(ctx context.Context, tx *sql.Tx, userID int64, balance decimal.Decimal) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE users SET balance = $1
		WHERE id = $2`, balance, userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %d disappeared while locked", userID)
	}
	return nil
}
