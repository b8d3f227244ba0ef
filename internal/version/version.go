package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is set at build time with -ldflags and falls back to the
	// module version embedded by go install.
	Version = "dev"
	// Commit is the VCS revision when known.
	Commit = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				Commit = s.Value[:7]
			}
		}
	}
}

// String formats the version line printed by the CLI.
func String() string {
	v := "mcpilot " + Version
	if Commit != "" {
		v += " (" + Commit + ")"
	}
	return fmt.Sprintf("%s %s/%s", v, runtime.GOOS, runtime.GOARCH)
}
