package version

import (
	"strings"
	"testing"
)

// withBuildInfo подменяет значения -ldflags на время теста.
func withBuildInfo(t *testing.T, v, c, d string) {
	t.Helper()
	prevVersion, prevCommit, prevDate := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() {
		version, commit, date = prevVersion, prevCommit, prevDate
	})
}

func TestDefaultsAreNotEmpty(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("expected non-empty defaults, got version=%q commit=%q date=%q", v, c, d)
	}
}

func TestGettersFollowInfo(t *testing.T) {
	withBuildInfo(t, "v1.4.2", "a1b2c3d", "2024-05-01T10:00:00Z")

	v, c, d := Info()
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "version", got: GetVersion(), want: v},
		{name: "commit", got: GetCommit(), want: c},
		{name: "date", got: GetDate(), want: d},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if v != "v1.4.2" {
		t.Fatalf("expected overridden version, got %q", v)
	}
}

func TestString(t *testing.T) {
	withBuildInfo(t, "v1.4.2", "a1b2c3d", "2024-05-01T10:00:00Z")

	s := String()
	if !strings.HasPrefix(s, "storefront ") {
		t.Fatalf("String() = %q, expected storefront prefix", s)
	}
	for _, part := range []string{"version=v1.4.2", "commit=a1b2c3d", "date=2024-05-01T10:00:00Z"} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}
}
