// Package auth authenticates trigger callers: HS256 user tokens issued and
// verified with golang-jwt, and the shared trigger secret presented by
// schedulers and webhooks.
package auth
