// Package version exposes the build version, overridden at link time.
package version

// Version is set via -ldflags "-X github.com/bnema/procure-cli/internal/version.Version=v1.2.3".
var Version = "dev"
