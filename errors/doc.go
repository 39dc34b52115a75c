// Package errors provides the structured error type shared by flowgate
// components: machine-readable codes, HTTP status mapping, retry guidance,
// and an RFC 7807-style response body.
package errors
