// Package credits meters workflow runs against per-user balances.
//
// CheckAndReserve compares a statically known cost with the balance without
// holding funds; Debit atomically subtracts a node's cost and refuses when
// the balance is too low.
package credits
