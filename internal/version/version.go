// Package version carries build metadata stamped in with -ldflags:
//
//	go build -ldflags "-X github.com/banshee-data/marine-composite/internal/version.Version=v0.3.0 \
//	  -X github.com/banshee-data/marine-composite/internal/version.GitSHA=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build metadata for the version subcommand.
func String() string {
	return fmt.Sprintf("reefcomp %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
