package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Build describes one binary.
type Build struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit,omitempty"`
	BuiltAt   time.Time `json:"built_at,omitempty"`
	GoVersion string    `json:"go_version,omitempty"`
	Modified  bool      `json:"modified,omitempty"`
}

// Read merges the ldflags values with the toolchain's build info. Explicit
// ldflags values win.
func Read() Build {
	b := Build{Version: Version, Commit: Commit}
	if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
		b.BuiltAt = t
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.GoVersion = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		case "vcs.time":
			if b.BuiltAt.IsZero() {
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					b.BuiltAt = t
				}
			}
		}
	}
	return b
}

// String renders "1.4.0 (abc1234, built 2026-01-02)" with whatever parts
// are known.
func (b Build) String() string {
	s := b.Version
	commit := b.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if b.Modified && commit != "" {
		commit += "-dirty"
	}
	switch {
	case commit != "" && !b.BuiltAt.IsZero():
		s += fmt.Sprintf(" (%s, built %s)", commit, b.BuiltAt.UTC().Format("2006-01-02"))
	case commit != "":
		s += fmt.Sprintf(" (%s)", commit)
	case !b.BuiltAt.IsZero():
		s += fmt.Sprintf(" (built %s)", b.BuiltAt.UTC().Format("2006-01-02"))
	}
	return s
}
