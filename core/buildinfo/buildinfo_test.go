package buildinfo

import (
	"strings"
	"testing"
)

func TestStringIncludesVersion(t *testing.T) {
	Version = "v9.9.9"
	got := String()
	if !strings.HasPrefix(got, "v9.9.9 (") {
		t.Fatalf("String() = %q", got)
	}
	if _, commit, _ := Info(); commit == "" {
		t.Fatal("commit must never be empty")
	}
}
