package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden at link time with -ldflags "-X".
var (
	CLIName    = "insights-mcp"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Current falls back to the VCS stamp embedded by the go tool when no commit
// was linked in.
func Current() Info {
	info := Info{
		Name:      CLIName,
		Version:   CLIVersion,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if info.Commit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}

func Long() string {
	info := Current()
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", info.Version, info.Commit, info.BuildDate, info.GoVersion)
}

// UserAgent is sent on every upstream request.
func UserAgent() string {
	return CLIName + "/" + CLIVersion
}
