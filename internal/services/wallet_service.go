package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/models"
)

// Outcome classifies the result of a balance-mutating request. Business
// rejections are outcomes, not errors; only storage faults surface as error.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeAlreadyProcessed
	OutcomeAccountNotFound
	OutcomeInsufficientFunds
)

// OperationResult carries the outcome plus whichever amounts the outcome
// needs: NewBalance for Applied, the previously recorded user/amount for
// AlreadyProcessed, and CurrentBalance/RequestedAmount for InsufficientFunds.
type OperationResult struct {
	Outcome         Outcome
	UserID          int64
	Amount          decimal.Decimal
	NewBalance      decimal.Decimal
	CurrentBalance  decimal.Decimal
	RequestedAmount decimal.Decimal
}

type WalletService struct {
	db       *sql.DB
	accounts *AccountStore
	ledger   *OperationLedger
	cache    *BalanceCache
	events   *OperationEvents
}

// NewWalletService wires the wallet core. redisClient and events may be nil;
// the service then runs without the balance cache or event publication.
func NewWalletService(db *sql.DB, redisClient *redis.Client, events *OperationEvents) *WalletService {
	return &WalletService{
		db:       db,
		accounts: NewAccountStore(),
		ledger:   NewOperationLedger(),
		cache:    NewBalanceCache(redisClient),
		events:   events,
	}
}

// Deposit credits the user's balance, creating the account on first use.
func (s *WalletService) Deposit(ctx context.Context, userID int64, amount decimal.Decimal, idempotencyKey string) (*OperationResult, error) {
	return s.execute(ctx, userID, amount, idempotencyKey, models.OperationDeposit)
}

// Pay debits the user's balance. The account must exist and the resulting
// balance may not go negative.
func (s *WalletService) Pay(ctx context.Context, userID int64, amount decimal.Decimal, idempotencyKey string) (*OperationResult, error) {
	return s.execute(ctx, userID, amount, idempotencyKey, models.OperationPayment)
}

// execute runs one request as a single database transaction: duplicate
// lookup, row lock, rule check, balance write, ledger append, commit. Two
// requests racing on the same user serialize on the FOR UPDATE lock; two
// requests racing on the same idempotency key are resolved by the ledger's
// UNIQUE constraint, with the loser reported as already processed.
func (s *WalletService) execute(ctx context.Context, userID int64, amount decimal.Decimal, idempotencyKey, opType string) (*OperationResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // no-op once committed

	prior, err := s.ledger.FindByIdempotencyKey(ctx, tx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return &OperationResult{
			Outcome: OutcomeAlreadyProcessed,
			UserID:  prior.UserID,
			Amount:  prior.Amount,
		}, nil
	}

	account, err := s.accounts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		if opType == models.OperationPayment {
			return &OperationResult{Outcome: OutcomeAccountNotFound, UserID: userID}, nil
		}
		if err := s.accounts.Create(ctx, tx, userID, decimal.Zero); err != nil && err != ErrAccountExists {
			return nil, err
		}
		// Re-read under the lock so a concurrent writer serializes here.
		account, err = s.accounts.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, fmt.Errorf("account %d missing after create", userID)
		}
	}

	var newBalance decimal.Decimal
	switch opType {
	case models.OperationDeposit:
		newBalance = account.Balance.Add(amount)
	case models.OperationPayment:
		if account.Balance.LessThan(amount) {
			return &OperationResult{
				Outcome:         OutcomeInsufficientFunds,
				UserID:          userID,
				CurrentBalance:  account.Balance,
				RequestedAmount: amount,
			}, nil
		}
		newBalance = account.Balance.Sub(amount)
	default:
		return nil, fmt.Errorf("unknown operation type %q", opType)
	}

	if err := s.accounts.SetBalance(ctx, tx, userID, newBalance); err != nil {
		return nil, err
	}

	op, err := s.ledger.Append(ctx, tx, userID, amount, opType, idempotencyKey)
	if err == ErrDuplicateOperation {
		// A concurrent identical request committed first. Roll back our
		// mutation and echo what the winner recorded.
		tx.Rollback()
		return s.recoverPrior(ctx, userID, amount, idempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return s.recoverPrior(ctx, userID, amount, idempotencyKey)
		}
		return nil, err
	}

	s.afterCommit(op, newBalance)

	return &OperationResult{
		Outcome:    OutcomeApplied,
		UserID:     userID,
		Amount:     amount,
		NewBalance: newBalance,
	}, nil
}

// recoverPrior reports a lost same-key race as already processed, echoing the
// winner's recorded values when they are readable.
func (s *WalletService) recoverPrior(ctx context.Context, userID int64, amount decimal.Decimal, idempotencyKey string) (*OperationResult, error) {
	result := &OperationResult{Outcome: OutcomeAlreadyProcessed, UserID: userID, Amount: amount}
	prior, err := s.ledger.FindByIdempotencyKey(ctx, s.db, idempotencyKey)
	if err != nil {
		log.Printf("[WALLET] could not read prior operation for key %s: %v", idempotencyKey, err)
		return result, nil
	}
	if prior != nil {
		result.UserID = prior.UserID
		result.Amount = prior.Amount
	}
	return result, nil
}

// afterCommit refreshes the balance cache and publishes the operation event.
// Both are best effort; the mutation is already durable.
func (s *WalletService) afterCommit(op *models.Operation, newBalance decimal.Decimal) {
	if s.cache != nil {
		if err := s.cache.SetBalance(context.Background(), op.UserID, newBalance); err != nil {
			log.Printf("[WALLET] balance cache update failed for user %d: %v", op.UserID, err)
		}
	}
	if s.events != nil {
		go func(op models.Operation) {
			if err := s.events.Publish(&op); err != nil {
				log.Printf("[WALLET] event publish failed for operation %s: %v", op.IdempotencyKey, err)
			}
		}(*op)
	}
}

// GetBalance reads the user's current balance, serving from the cache when
// warm. found is false when the account does not exist.
func (s *WalletService) GetBalance(ctx context.Context, userID int64) (balance decimal.Decimal, found bool, err error) {
	if s.cache != nil {
		if cached, ok, cacheErr := s.cache.GetBalance(ctx, userID); cacheErr == nil && ok {
			return cached, true, nil
		}
	}

	err = s.db.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.SetBalance(ctx, userID, balance); cacheErr != nil {
			log.Printf("[WALLET] balance cache warm failed for user %d: %v", userID, cacheErr)
		}
	}
	return balance, true, nil
}

// RecentOperations lists the user's ledger history, newest first.
func (s *WalletService) RecentOperations(ctx context.Context, userID int64, limit int) ([]models.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, transaction_id, type, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	operations := []models.Operation{}
	for rows.Next() {
		var op models.Operation
		if err := rows.Scan(&op.ID, &op.UserID, &op.Amount, &op.IdempotencyKey, &op.Type, &op.CreatedAt); err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}
	return operations, rows.Err()
}
