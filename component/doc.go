// Package component defines lifecycle-managed infrastructure and the
// registry that starts and stops it in order.
package component
