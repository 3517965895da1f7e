package services

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceCache(t *testing.T) {
	ctx := context.Background()

	t.Run("nil client disables the cache", func(t *testing.T) {
		assert.Nil(t, NewBalanceCache(nil))
	})

	t.Run("get hit", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewBalanceCache(client)

		mock.ExpectGet("balance:1").SetVal("42.42")

		balance, found, err := cache.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, balance.Equal(decimal.RequireFromString("42.42")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get miss", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewBalanceCache(client)

		mock.ExpectGet("balance:2").RedisNil()

		_, found, err := cache.GetBalance(ctx, 2)
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt value is an error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewBalanceCache(client)

		mock.ExpectGet("balance:3").SetVal("not-a-number")

		_, found, err := cache.GetBalance(ctx, 3)
		assert.Error(t, err)
		assert.False(t, found)
	})

	t.Run("set stores the decimal string with a TTL", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewBalanceCache(client)

		mock.ExpectSet("balance:1", "99.99", defaultBalanceTTL).SetVal("OK")

		err := cache.SetBalance(ctx, 1, decimal.RequireFromString("99.99"))
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
