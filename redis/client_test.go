package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/redis"
	"github.com/kbukum/flowgate/redis/testutil"
)

type testState struct {
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func TestClient_Key(t *testing.T) {
	client, _ := testutil.NewClient(t)
	if got := client.Key("rl", "execute", "user", "u1"); got != "test:rl:execute:user:u1" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestClient_IncrExpire(t *testing.T) {
	client, mini := testutil.NewClient(t)
	ctx := context.Background()

	n, ttl, err := client.IncrExpire(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("IncrExpire: %v", err)
	}
	if n != 1 || ttl != time.Minute {
		t.Errorf("expected 1 with 1m ttl, got %d %v", n, ttl)
	}

	mini.FastForward(20 * time.Second)
	n, ttl, err = client.IncrExpire(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("IncrExpire: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
	if ttl > 40*time.Second {
		t.Errorf("ttl must not be refreshed, got %v", ttl)
	}

	mini.FastForward(time.Minute)
	n, _, _ = client.IncrExpire(ctx, "counter", time.Minute)
	if n != 1 {
		t.Errorf("expected counter reset after expiry, got %d", n)
	}
}

func TestClient_SetNX(t *testing.T) {
	client, _ := testutil.NewClient(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "k", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX should win: %v %v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should lose: %v %v", ok, err)
	}
	if v, _ := client.Get(ctx, "k"); v != "a" {
		t.Errorf("expected a, got %q", v)
	}
}

func TestClient_RunScript(t *testing.T) {
	client, _ := testutil.NewClient(t)
	script := goredis.NewScript(`return redis.call("INCRBY", KEYS[1], ARGV[1])`)

	got, err := client.Run(context.Background(), script, []string{"s"}, 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.(int64) != 5 {
		t.Errorf("expected 5, got %v", got)
	}
}

func TestTypedStore_SaveLoadDelete(t *testing.T) {
	client, mini := testutil.NewClient(t)
	store := redis.NewTypedStore[testState](client, "state")
	ctx := context.Background()

	if err := store.Save(ctx, "k1", &testState{Count: 5, Tags: []string{"a"}}, 0); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !mini.Exists("test:state:k1") {
		t.Error("expected namespaced key in redis")
	}

	got, err := store.Load(ctx, "k1")
	if err != nil || got == nil || got.Count != 5 {
		t.Fatalf("unexpected load: %+v %v", got, err)
	}

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = store.Load(ctx, "k1")
	if err != nil || got != nil {
		t.Fatalf("expected nil after delete, got %+v %v", got, err)
	}
}

func TestTypedStore_SaveNX(t *testing.T) {
	client, mini := testutil.NewClient(t)
	store := redis.NewTypedStore[testState](client, "state")
	ctx := context.Background()

	ok, err := store.SaveNX(ctx, "k", &testState{Count: 1}, 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("first SaveNX: %v %v", ok, err)
	}
	ok, _ = store.SaveNX(ctx, "k", &testState{Count: 2}, 2*time.Second)
	if ok {
		t.Fatal("second SaveNX should not overwrite")
	}

	mini.FastForward(3 * time.Second)
	ok, _ = store.SaveNX(ctx, "k", &testState{Count: 3}, 2*time.Second)
	if !ok {
		t.Fatal("SaveNX should succeed after expiry")
	}
	got, _ := store.Load(ctx, "k")
	if got == nil || got.Count != 3 {
		t.Errorf("expected Count=3, got %+v", got)
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	_, mini := testutil.NewClient(t)
	c := redis.NewComponent(redis.Config{Enabled: true, Addr: mini.Addr()}, loggerNop())
	ctx := context.Background()

	if h := c.Health(ctx); h.Status != "unhealthy" {
		t.Errorf("expected unhealthy before start, got %s", h.Status)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := c.Health(ctx); h.Status != "healthy" {
		t.Errorf("expected healthy, got %s", h.Status)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNew_Disabled(t *testing.T) {
	if _, err := redis.New(redis.Config{}, loggerNop()); err == nil {
		t.Error("expected error for disabled redis")
	}
}

func loggerNop() *logger.Logger { return logger.NewNop() }
