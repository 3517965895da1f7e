package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const defaultBalanceTTL = 5 * time.Minute

// BalanceCache keeps the latest committed balance per user in Redis so reads
// can skip Postgres. It is refreshed after every committed mutation.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache returns nil when no Redis client is configured; callers
// treat a nil cache as disabled.
func NewBalanceCache(client *redis.Client) *BalanceCache {
	if client == nil {
		return nil
	}
	return &BalanceCache{client: client, ttl: defaultBalanceTTL}
}

func balanceKey(userID int64) string {
	return fmt.Sprintf("balance:%d", userID)
}

func (c *BalanceCache) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(userID)).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached balance for user %d: %w", userID, err)
	}
	return balance, true, nil
}

func (c *BalanceCache) SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	return c.client.Set(ctx, balanceKey(userID), balance.String(), c.ttl).Err()
}
