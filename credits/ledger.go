package credits

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/flowgate/redis"
)

// Check is the result of a pre-flight balance check.
type Check struct {
	Success bool  `json:"success"`
	Balance int64 `json:"balance"`
}

// Ledger is the credit collaborator used by the orchestrator.
type Ledger interface {
	CheckAndReserve(ctx context.Context, userID, workflowID string, amount int64) (Check, error)
	// Debit subtracts amount and reports false when the balance is short.
	Debit(ctx context.Context, userID string, amount int64) (bool, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// MemoryLedger keeps balances in process.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int64)}
}

// Grant adds amount to a user's balance.
func (m *MemoryLedger) Grant(userID string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
}

// CheckAndReserve implements Ledger.
func (m *MemoryLedger) CheckAndReserve(_ context.Context, userID, _ string, amount int64) (Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balances[userID]
	return Check{Success: bal >= amount, Balance: bal}, nil
}

// Debit implements Ledger.
func (m *MemoryLedger) Debit(_ context.Context, userID string, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[userID] < amount {
		return false, nil
	}
	m.balances[userID] -= amount
	return true, nil
}

// Balance implements Ledger.
func (m *MemoryLedger) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

var debitScript = goredis.NewScript(`
local bal = tonumber(redis.call("GET", KEYS[1]) or "0")
local amount = tonumber(ARGV[1])
if bal < amount then
  return -1
end
return redis.call("DECRBY", KEYS[1], amount)
`)

// RedisLedger keeps balances in Redis, shared by every instance.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger creates a RedisLedger.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (r *RedisLedger) key(userID string) string {
	return r.client.Key("credits", userID)
}

// Grant adds amount to a user's balance.
func (r *RedisLedger) Grant(ctx context.Context, userID string, amount int64) error {
	return r.client.Unwrap().IncrBy(ctx, r.key(userID), amount).Err()
}

// Seed sets a user's starting balance unless the user already has one. It
// reports whether the balance was created, so repeated process starts never
// mint the same grant twice.
func (r *RedisLedger) Seed(ctx context.Context, userID string, amount int64) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(userID), amount, 0)
	if err != nil {
		return false, fmt.Errorf("credits seed: %w", err)
	}
	return ok, nil
}

// CheckAndReserve implements Ledger.
func (r *RedisLedger) CheckAndReserve(ctx context.Context, userID, _ string, amount int64) (Check, error) {
	bal, err := r.Balance(ctx, userID)
	if err != nil {
		return Check{}, err
	}
	return Check{Success: bal >= amount, Balance: bal}, nil
}

// Debit implements Ledger.
func (r *RedisLedger) Debit(ctx context.Context, userID string, amount int64) (bool, error) {
	res, err := r.client.Run(ctx, debitScript, []string{r.key(userID)}, amount)
	if err != nil {
		return false, fmt.Errorf("credits debit: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("credits debit: unexpected reply %T", res)
	}
	return n >= 0, nil
}

// Balance implements Ledger.
func (r *RedisLedger) Balance(ctx context.Context, userID string) (int64, error) {
	raw, err := r.client.Get(ctx, r.key(userID))
	if redis.IsNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("credits balance: %w", err)
	}
	return strconv.ParseInt(raw, 10, 64)
}
