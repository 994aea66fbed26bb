package version

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
)

// Build metadata, overridable with -ldflags "-X ...". When left at their
// defaults, Get falls back to the VCS stamp the Go toolchain embeds.
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	// Drivers maps a PostgreSQL driver name to its module version
	Drivers map[string]string `json:"drivers,omitempty"`
}

// Get returns the version information
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "dev" && s.Value != "" {
					info.GitCommit = shortRevision(s.Value)
				}
			case "vcs.time":
				if info.BuildDate == "unknown" && s.Value != "" {
					info.BuildDate = s.Value
				}
			}
		}
	}

	return info
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// WithDrivers returns a copy listing the given driver versions
func (i Info) WithDrivers(drivers map[string]string) Info {
	if len(drivers) == 0 {
		return i
	}
	i.Drivers = make(map[string]string, len(drivers))
	for k, v := range drivers {
		i.Drivers[k] = v
	}
	return i
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("pgquery %s (commit: %s, built: %s, go: %s, %s/%s)",
		i.Version,
		i.GitCommit,
		i.BuildDate,
		i.GoVersion,
		i.OS,
		i.Arch,
	)
}

// Short returns the version only
func (i Info) Short() string {
	return i.Version
}

// Full returns a detailed multi-line version string
func (i Info) Full() string {
	var b strings.Builder
	fmt.Fprintf(&b, `pgquery Version Information:
  Version:    %s
  Git Commit: %s
  Build Date: %s
  Go Version: %s
  OS/Arch:    %s/%s`,
		i.Version,
		i.GitCommit,
		i.BuildDate,
		i.GoVersion,
		i.OS,
		i.Arch,
	)

	if len(i.Drivers) > 0 {
		b.WriteString("\n  Drivers:")
		for _, name := range sortedKeys(i.Drivers) {
			v := i.Drivers[name]
			if v == "" {
				v = "unknown"
			}
			fmt.Fprintf(&b, "\n    %-10s %s", name, v)
		}
	}
	return b.String()
}

// LogValue lets Info be logged as a group
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", i.Version),
		slog.String("commit", i.GitCommit),
		slog.String("go", i.GoVersion),
	)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
