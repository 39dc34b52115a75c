package credits

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kbukum/flowgate/redis/testutil"
)

type granter interface {
	Ledger
	grant(t *testing.T, userID string, amount int64)
}

type memGranter struct{ *MemoryLedger }

func (m memGranter) grant(_ *testing.T, userID string, amount int64) { m.Grant(userID, amount) }

type redisGranter struct{ *RedisLedger }

func (r redisGranter) grant(t *testing.T, userID string, amount int64) {
	t.Helper()
	if err := r.Grant(context.Background(), userID, amount); err != nil {
		t.Fatalf("Grant: %v", err)
	}
}

func ledgers(t *testing.T) map[string]granter {
	client, _ := testutil.NewClient(t)
	return map[string]granter{
		"memory": memGranter{NewMemoryLedger()},
		"redis":  redisGranter{NewRedisLedger(client)},
	}
}

func TestLedger_CheckAndReserve(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			l.grant(t, "u1", 10)

			c, err := l.CheckAndReserve(context.Background(), "u1", "wf", 50)
			if err != nil {
				t.Fatalf("CheckAndReserve: %v", err)
			}
			if c.Success || c.Balance != 10 {
				t.Errorf("expected failed check with balance 10, got %+v", c)
			}

			c, _ = l.CheckAndReserve(context.Background(), "u1", "wf", 10)
			if !c.Success {
				t.Error("exact balance should pass")
			}
			if bal, _ := l.Balance(context.Background(), "u1"); bal != 10 {
				t.Errorf("check must not hold funds, balance %d", bal)
			}
		})
	}
}

func TestLedger_DebitNeverOverdraws(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			l.grant(t, "u1", 10)

			var ok atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if paid, err := l.Debit(context.Background(), "u1", 3); err == nil && paid {
						ok.Add(1)
					}
				}()
			}
			wg.Wait()

			if ok.Load() != 3 {
				t.Errorf("expected 3 successful debits, got %d", ok.Load())
			}
			if bal, _ := l.Balance(context.Background(), "u1"); bal != 1 {
				t.Errorf("expected balance 1, got %d", bal)
			}
		})
	}
}

func TestLedger_UnknownUser(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			paid, err := l.Debit(context.Background(), "ghost", 1)
			if err != nil || paid {
				t.Errorf("expected refused debit, got %v err=%v", paid, err)
			}
		})
	}
}

func TestRedisLedger_SeedOnlyOnce(t *testing.T) {
	client, _ := testutil.NewClient(t)
	ctx := context.Background()

	first := NewRedisLedger(client)
	if ok, err := first.Seed(ctx, "u1", 100); err != nil || !ok {
		t.Fatalf("first seed ok=%v err=%v", ok, err)
	}
	if ok, _ := first.Debit(ctx, "u1", 30); !ok {
		t.Fatal("debit refused")
	}

	// A second process start seeds the same user again.
	second := NewRedisLedger(client)
	if ok, err := second.Seed(ctx, "u1", 100); err != nil || ok {
		t.Fatalf("second seed ok=%v err=%v", ok, err)
	}
	if bal, _ := second.Balance(ctx, "u1"); bal != 70 {
		t.Errorf("balance = %d, want 70", bal)
	}
}
