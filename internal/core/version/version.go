// Package version reports what build of the relay is running
package version

import (
	"runtime"
	"runtime/debug"
)

// Service is the name the relay announces in logs, client info and /version
const Service = "otprelay"

// BuildInfo holds version information about the service build
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

// Info returns the build information
// version, commit and date are set with -ldflags "-X 'otprelay/internal/core/version.version=v0.3.0'";
// a plain go build falls back to the module's vcs stamp
func Info() BuildInfo {
	bi := BuildInfo{
		Service: Service,
		Version: version,
		Commit:  commit,
		Date:    date,
		Go:      runtime.Version(),
	}
	if bi.Commit == "none" || bi.Date == "unknown" {
		fillFromVCS(&bi, readBuildInfo)
	}
	return bi
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	readBuildInfo = debug.ReadBuildInfo
)

func fillFromVCS(bi *BuildInfo, read func() (*debug.BuildInfo, bool)) {
	info, ok := read()
	if !ok || info == nil {
		return
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && bi.Commit == "none" && len(s.Value) >= 7:
			bi.Commit = s.Value[:7]
		case s.Key == "vcs.time" && bi.Date == "unknown":
			bi.Date = s.Value
		}
	}
}
