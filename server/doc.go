// Package server provides the flowgate HTTP server: a Gin engine served
// with cleartext HTTP/2 support, the standard middleware stack, and a
// component wrapper for lifecycle management.
//
// Middleware lives in server/middleware (recovery, request id, CORS, body
// limit, request logging, user tokens, trigger secret, tiered rate limits).
// Health and pool endpoints live in server/endpoint.
package server
