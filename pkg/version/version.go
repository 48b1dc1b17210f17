/*
Package version reports build information for munki-conditions.

Values are set at build time with -ldflags:

	go build -ldflags "-X github.com/fleetdm/munki-conditions/pkg/version.version=1.0.0"

Available values and defaults:

	version   = "unknown"
	branch    = "unknown"
	revision  = "unknown"
	buildDate = "unknown"
*/
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

const appName = "munki-conditions"

// These values are private which ensures they can only be set with the build flags.
var (
	version   = "unknown"
	branch    = "unknown"
	revision  = "unknown"
	goVersion = runtime.Version()
	buildDate = "unknown"
)

// Info is a structure with version build information about the current application.
type Info struct {
	Version   string `yaml:"version"`
	Branch    string `yaml:"branch"`
	Revision  string `yaml:"revision"`
	GoVersion string `yaml:"go_version"`
	BuildDate string `yaml:"build_date"`
}

// Version returns the current version information. A binary built without
// -ldflags falls back to the VCS stamp the go tool embeds, when there is one.
func Version() Info {
	info := Info{
		Version:   version,
		Branch:    branch,
		Revision:  revision,
		GoVersion: goVersion,
		BuildDate: buildDate,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildSettings(&info, bi.Settings)
	}
	return info
}

func fillFromBuildSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Revision == "unknown" {
				info.Revision = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
}

// Print writes the application name and version string.
func Print(w io.Writer) {
	fmt.Fprintf(w, "%s version %s\n", appName, Version().Version)
}

// PrintFull writes the application name and detailed version information.
func PrintFull(w io.Writer) {
	v := Version()
	fmt.Fprintf(w, "%s - version %s\n", appName, v.Version)
	fmt.Fprintf(w, "  branch: \t%s\n", v.Branch)
	fmt.Fprintf(w, "  revision: \t%s\n", v.Revision)
	fmt.Fprintf(w, "  build date: \t%s\n", v.BuildDate)
	fmt.Fprintf(w, "  go version: \t%s\n", v.GoVersion)
}
