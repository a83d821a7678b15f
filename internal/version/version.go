package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time via -ldflags.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Summary renders the build information block printed by `radar version`.
func Summary() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}

// UserAgent identifies the binary to third-party HTTP APIs.
func UserAgent() string {
	return "memecoin-radar/" + Version
}
