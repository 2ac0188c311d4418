// Package version exposes the build identity set through -ldflags.
package version

import (
	"runtime"
)

const Service = "ai-platform-wrapper"

// Overridden at build time, e.g.
// -ldflags "-X github.com/wojkos/ai-platform-wraper/internal/platform/version.Version=v1.2.0".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the /version payload.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Service:   Service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// LogAttrs renders the build identity for the startup log line.
func (i Info) LogAttrs() []any {
	return []any{"service", i.Service, "version", i.Version, "commit", i.Commit, "go_version", i.GoVersion}
}
