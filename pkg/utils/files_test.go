package utils

import (
	"path/filepath"
	"testing"
)

func TestResolveSourcePathReturnsAbsolutePath(t *testing.T) {
	full, err := ResolveSourcePath("prog.c")
	if err != nil {
		t.Fatalf("ResolveSourcePath: %v", err)
	}
	if !filepath.IsAbs(full) {
		t.Errorf("got %q, want an absolute path", full)
	}
}

func TestResolveSourcePathCleansRelativeSegments(t *testing.T) {
	full, err := ResolveSourcePath("a/../b/prog.c")
	if err != nil {
		t.Fatalf("ResolveSourcePath: %v", err)
	}
	if filepath.Base(full) != "prog.c" {
		t.Errorf("got %q, want a path ending in prog.c", full)
	}
	want, _ := filepath.Abs("b/prog.c")
	if full != want {
		t.Errorf("got %q, want %q", full, want)
	}
}
