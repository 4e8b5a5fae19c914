// Package version holds the build-time version string, overridable via
// `-ldflags "-X tattoy/internal/version.Version=..."`.
package version

// Version is tattoy's release version.
var Version = "0.1.0"
