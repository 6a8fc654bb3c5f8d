package buildinfo

import (
	"fmt"
	"runtime/debug"
)

const Name = "revlog"

func read() (*debug.BuildInfo, bool) {
	info, ok := debug.ReadBuildInfo()
	return info, ok && info != nil
}

// Version returns the module version or "dev" for local builds.
func Version() string {
	info, ok := read()
	if !ok {
		return "dev"
	}
	switch v := info.Main.Version; v {
	case "", "(devel)":
		return "dev"
	default:
		return v
	}
}

// Revision returns the VCS revision the binary was built from, shortened
// to 12 characters, and whether the tree had local modifications.
func Revision() (rev string, dirty bool) {
	info, ok := read()
	if !ok {
		return "", false
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value[:min(12, len(setting.Value))]
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return rev, dirty
}

// String is the full version line printed by --version.
func String() string {
	rev, dirty := Revision()
	switch {
	case rev == "":
		return fmt.Sprintf("%s %s", Name, Version())
	case dirty:
		return fmt.Sprintf("%s %s (%s, modified)", Name, Version(), rev)
	default:
		return fmt.Sprintf("%s %s (%s)", Name, Version(), rev)
	}
}

// ServerHeader identifies revlog in HTTP responses.
func ServerHeader() string {
	return Name + "/" + Version()
}
