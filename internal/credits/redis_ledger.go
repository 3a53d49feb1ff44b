package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"charagen/internal/domain"
)

// debitScript decrements the balance only when it is at least one.
// Returns the remaining balance, or -1 when the guard failed.
var debitScript = redis.NewScript(`
local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
if balance < 1 then
  return -1
end
return redis.call("DECR", KEYS[1])
`)

// RedisLedger keeps balances under credits:{userID}.
type RedisLedger struct {
	client redis.Cmdable
	prefix string
}

// NewRedisLedger builds a ledger on any go-redis client (single node, cluster or ring).
func NewRedisLedger(client redis.Cmdable) *RedisLedger {
	return &RedisLedger{client: client, prefix: "credits:"}
}

func (l *RedisLedger) key(userID string) string {
	return l.prefix + userID
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (int, error) {
	balance, err := l.client.Get(ctx, l.key(userID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("credits: read balance: %w", err)
	}
	return balance, nil
}

func (l *RedisLedger) DebitOne(ctx context.Context, userID string) (int, bool, error) {
	remaining, err := debitScript.Run(ctx, l.client, []string{l.key(userID)}).Int()
	if err != nil {
		return 0, false, fmt.Errorf("credits: debit: %w", err)
	}
	if remaining < 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

// Set overwrites the balance. Used by the credits CLI and tests.
func (l *RedisLedger) Set(ctx context.Context, userID string, balance int) error {
	if balance < 0 {
		balance = 0
	}
	if err := l.client.Set(ctx, l.key(userID), balance, 0).Err(); err != nil {
		return fmt.Errorf("credits: set balance: %w", err)
	}
	return nil
}

var _ domain.CreditLedger = (*RedisLedger)(nil)
