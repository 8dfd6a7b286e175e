// Package version exposes the build identity the linker stamps in.
package version

//nolint:revive // Overwritten through -ldflags at release time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
