package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version of the service and CLI
	Version = "1.0.0"

	// APIVersion of the HTTP and websocket contracts
	APIVersion = "v1"
)

// Stamped by build.go through -ldflags "-X aquaexport/pkg/contracts.BuildTime=...".
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo is served on /api/v1/version
type VersionInfo struct {
	Version      string `json:"version"`
	APIVersion   string `json:"api_version"`
	BuildTime    string `json:"build_time"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
}

// GetVersionInfo describes the running binary
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:      Version,
		APIVersion:   APIVersion,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
}

// GetVersionString returns "aquaexport v<version>"
func GetVersionString() string {
	return "aquaexport v" + Version
}

// GetFullVersionString adds build metadata, as printed by `export -version`
func GetFullVersionString() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s %s/%s)",
		GetVersionString(), GitCommit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
