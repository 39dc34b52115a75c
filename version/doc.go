// Package version reports the build that produced the flowgate binary.
//
// Release builds stamp the version through -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/flowgate/version.Version=1.4.0" ./cmd/flowgate
//
// Commit and build time come from the Go toolchain's VCS stamping when
// not set explicitly.
package version
