// Package ratelimit protects trigger scopes with fixed-window counters per
// authenticated user, globally and per source IP, plus escalating penalties
// for repeat offenders.
//
// Window bucket is floor(now / window). Every denial bumps a violation
// counter for (scope, dimension, subject) that outlives the window and sets a
// cooldown of min(base * 2^(violations-1), max). While the cooldown runs the
// subject is denied without consuming window capacity.
package ratelimit
