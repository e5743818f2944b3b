// Package config exposes build metadata for logscanner binaries.
package config

import (
	"fmt"
	"runtime"
)

// Populated at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats the build info for logs and the version command.
func (b BuildInfo) String() string {
	return fmt.Sprintf("logscanner %s (%s) built at %s with %s on %s",
		b.Version, b.Commit, b.BuildTime, b.GoVersion, b.Platform)
}

// VersionString returns the formatted version of the running binary.
func VersionString() string {
	return GetBuildInfo().String()
}
