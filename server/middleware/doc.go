// Package middleware holds the Gin middleware of the flowgate HTTP server.
package middleware
