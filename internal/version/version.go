// Package version exposes the build metadata stamped into the binary.
package version

import (
	"fmt"
	"runtime"
)

// Set through -ldflags at release time; the defaults identify a local
// development build.
var (
	Version = "0.0.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
	Dirty   = "false"
)

// Info is the resolved build metadata, including the runtime the binary
// was compiled with.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get resolves the stamped variables into an Info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Dirty:     Dirty == "true",
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String formats the full version line logged at startup.
func (i Info) String() string {
	dirty := ""
	if i.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s) built %s", i.Version, i.Commit, dirty, i.Date)
}

// Short returns just the version, with a -dirty suffix for unclean trees.
func (i Info) Short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}
