package version

import (
	"testing"
	"time"
)

func TestRead_LdflagsWin(t *testing.T) {
	oldV, oldC, oldT := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldV, oldC, oldT })

	Version, Commit, BuildTime = "1.4.0", "abcdef0123", "2026-03-01T10:00:00Z"
	b := Read()
	if b.Version != "1.4.0" || b.Commit != "abcdef0123" {
		t.Errorf("build = %+v", b)
	}
	if !b.BuiltAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("built at = %v", b.BuiltAt)
	}
}

func TestRead_BadBuildTimeIgnored(t *testing.T) {
	old := BuildTime
	t.Cleanup(func() { BuildTime = old })
	BuildTime = "yesterday"
	if b := Read(); b.Version == "" {
		t.Errorf("build = %+v", b)
	}
}

func TestBuildString(t *testing.T) {
	built := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		b    Build
		want string
	}{
		{"version only", Build{Version: "dev"}, "dev"},
		{"commit", Build{Version: "1.0", Commit: "abcdef0123"}, "1.0 (abcdef0)"},
		{"dirty", Build{Version: "1.0", Commit: "abc", Modified: true}, "1.0 (abc-dirty)"},
		{"time", Build{Version: "1.0", BuiltAt: built}, "1.0 (built 2026-03-01)"},
		{"all", Build{Version: "1.0", Commit: "abcdef0123", BuiltAt: built}, "1.0 (abcdef0, built 2026-03-01)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.b.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}
