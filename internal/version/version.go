// Package version carries build metadata injected with -ldflags.
package version

import "runtime"

var (
	// Set via ldflags at build time
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Info returns version information
func Info() map[string]string {
	return map[string]string{
		"commit":  Commit,
		"built":   BuildDate,
		"go":      runtime.Version(),
		"os/arch": runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// UserAgent identifies greenhouse in outgoing requests.
func UserAgent() string {
	return "greenhouse/" + Version
}
