// Package redis wraps go-redis for flowgate's shared backends: idempotency
// records, rate-limit counters and the credit ledger.
//
// Keys are namespaced with Config.KeyPrefix. TypedStore offers JSON values
// with set-if-absent semantics:
//
//	store := redis.NewTypedStore[Record](client, "idem")
//	ok, err := store.SaveNX(ctx, key, &rec, ttl)
package redis
