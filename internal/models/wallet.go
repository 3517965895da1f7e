package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Operation types recorded in the ledger.
const (
	OperationDeposit = "deposit"
	OperationPayment = "payment"
)

type Account struct {
	UserID  int64           `json:"userId" db:"id"`
	Balance decimal.Decimal `json:"balance" db:"balance"` // never negative
}

// Operation is one committed ledger entry. Rows are immutable once written;
// the transaction_id column carries the caller's idempotency key and is
// unique across both operation types.
type Operation struct {
	ID             int64           `json:"id" db:"id"`
	UserID         int64           `json:"userId" db:"user_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	IdempotencyKey string          `json:"transactionId" db:"transaction_id"`
	Type           string          `json:"type" db:"type"` // deposit or payment
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}
