package version

import (
	"strings"
	"testing"
)

func TestStringIncludesBuildDate(t *testing.T) {
	old := BuildDate
	BuildDate = "2025-01-01T00:00:00Z"
	defer func() { BuildDate = old }()

	out := String()
	if !strings.Contains(out, "built: 2025-01-01T00:00:00Z") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "go: go") {
		t.Fatalf("go version missing: %q", out)
	}
}
