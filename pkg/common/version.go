package common

import "fmt"

// These variables are injected at build time using -ldflags
var (
	SUMMARY = "development"
	BRANCH  = "unknown"
	VERSION = "dev"
	COMMIT  = "unknown"
)

func GetVersion() string {
	if VERSION == "dev" {
		return "1.0.0-dev"
	}
	return VERSION
}

// GetBuildInfo is the version plus commit and branch, for the startup log
func GetBuildInfo() string {
	return fmt.Sprintf("%s (commit %s, branch %s, %s)", GetVersion(), COMMIT, BRANCH, SUMMARY)
}
