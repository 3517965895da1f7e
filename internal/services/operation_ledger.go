package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/models"
)

// ErrDuplicateOperation is returned by Append when another transaction has
// already committed the same idempotency key.
var ErrDuplicateOperation = errors.New("operation already recorded")

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OperationLedger is the append-only history of accepted operations.
type OperationLedger struct{}

func NewOperationLedger() *OperationLedger {
	return &OperationLedger{}
}

// FindByIdempotencyKey returns the previously recorded operation for the key,
// or nil when none exists.
func (l *OperationLedger) FindByIdempotencyKey(ctx context.Context, q rowQuerier, key string) (*models.Operation, error) {
	var op models.Operation
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, amount, transaction_id, type, created_at
		FROM transactions
		WHERE transaction_id = $1`, key).Scan(
		&op.ID, &op.UserID, &op.Amount, &op.IdempotencyKey, &op.Type, &op.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// Append inserts an immutable record of the operation. The UNIQUE constraint
// on transaction_id closes the race left open by FindByIdempotencyKey: a
// concurrent identical request that slipped past the lookup fails here with
// ErrDuplicateOperation.
func (l *OperationLedger) Append(ctx context.Context, tx *sql.Tx, userID int64, amount decimal.Decimal, opType, key string) (*models.Operation, error) {
	op := models.Operation{
		UserID:         userID,
		Amount:         amount,
		IdempotencyKey: key,
		Type:           opType,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, amount, transaction_id, type, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		userID, amount, key, opType).Scan(&op.ID, &op.CreatedAt)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return nil, ErrDuplicateOperation
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}
