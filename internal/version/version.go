package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/penroseide"

// buildVersion is set via -ldflags "-X pkt.systems/penroseide/internal/version.buildVersion=...".
var buildVersion = ""

var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Module    string `json:"module"`
	GoVersion string `json:"go_version"`
}

// String renders the info on one line.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s)", i.Module, i.Version, i.GoVersion)
}

// Get returns the build information, including the dirty marker when known.
func Get() Info {
	return Info{Version: CurrentWithDirty(), Module: Module(), GoVersion: runtime.Version()}
}

// Current returns the best available version string (without dirty suffix).
func Current() string {
	return resolve(false)
}

// CurrentWithDirty returns the best available version string (including dirty suffix when available).
func CurrentWithDirty() string {
	return resolve(true)
}

// Module returns the module path from build info when available.
func Module() string {
	if info, ok := readBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

func resolve(dirty bool) string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return clean(v, dirty)
	}
	if info, ok := readBuildInfo(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return clean(v, dirty)
		}
		if v := pseudoFromBuildInfo(info, dirty); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

func clean(v string, dirty bool) string {
	if dirty {
		return v
	}
	return strings.TrimSuffix(v, "+dirty")
}

func pseudoFromBuildInfo(info *debug.BuildInfo, dirty bool) string {
	if info == nil {
		return ""
	}
	vcs := map[string]string{}
	for _, setting := range info.Settings {
		vcs[setting.Key] = setting.Value
	}
	revision, stamp := vcs["vcs.revision"], vcs["vcs.time"]
	if revision == "" || stamp == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	out := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
	if dirty && vcs["vcs.modified"] == "true" {
		out += "+dirty"
	}
	return out
}
