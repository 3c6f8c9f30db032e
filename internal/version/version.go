// Package version carries build identification, reported by the -version
// flag and the monitor status endpoint.
package version

// Set at build time via -ldflags.
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)
