package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writeTemp: %v", err)
	}
	return path
}

func TestPreprocessObjectMacro(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.c", "#define WIDTH 640\nfunction main() { uint32 w = WIDTH; }\n")

	out, _, err := Preprocess(path)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(out, "w = 640") {
		t.Errorf("expected macro-expanded output, got:\n%s", out)
	}
}

func TestPreprocessFunctionLikeMacro(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.c", "#define ADD(a,b) (a + b)\nfunction main() { uint32 w = ADD(1, 2); }\n")

	out, _, err := Preprocess(path)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(out, "(1 + 2)") {
		t.Errorf("expected function-like macro expansion, got:\n%s", out)
	}
}

func TestPreprocessInclude(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "defs.h", "#define ANSWER 42\n")
	path := writeTemp(t, dir, "main.c", "#include \"defs.h\"\nfunction main() { uint32 x = ANSWER; }\n")

	out, sourceMap, err := Preprocess(path)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(out, "x = 42") {
		t.Errorf("expected included macro expansion, got:\n%s", out)
	}
	found := false
	for _, origin := range sourceMap {
		if origin.File == filepath.Join(dir, "defs.h") {
			found = true
		}
	}
	if !found {
		t.Error("expected source map to attribute a line to the included file")
	}
}

func TestPreprocessCircularIncludeErrors(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.h", "#include \"b.h\"\n")
	path := writeTemp(t, dir, "b.h", "#include \"a.h\"\n")

	_, _, err := Preprocess(path)
	if err == nil {
		t.Fatal("expected a circular-include error")
	}
	diag, ok := err.(*Diagnostic)
	if !ok || diag.Kind != PreprocessingError {
		t.Errorf("got %v, want a PreprocessingError diagnostic", err)
	}
}

func TestPreprocessDiamondIncludeIsSilent(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "shared.h", "#define X 1\n")
	writeTemp(t, dir, "left.h", "#include \"shared.h\"\n")
	writeTemp(t, dir, "right.h", "#include \"shared.h\"\n")
	path := writeTemp(t, dir, "main.c", "#include \"left.h\"\n#include \"right.h\"\nfunction main() { uint32 x = X; }\n")

	out, _, err := Preprocess(path)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(out, "x = 1") {
		t.Errorf("expected diamond include to still resolve X, got:\n%s", out)
	}
}

func TestPreprocessIncludeFallsBackToEntryFileDirectory(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	subDir := filepath.Join(srcDir, "sub")
	otherDir := filepath.Join(root, "other")
	for _, dir := range []string{srcDir, subDir, otherDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll(%s): %v", dir, err)
		}
	}
	// defs.h lives only in the entry file's own directory (srcDir), not
	// next to the included file that needs it (subDir) nor in cwd.
	writeTemp(t, srcDir, "defs.h", "#define BASE 1\n")
	writeTemp(t, subDir, "levelb.h", "#include \"defs.h\"\n")
	path := writeTemp(t, srcDir, "main.c", "#include \"sub/levelb.h\"\nfunction main() { uint32 x = BASE; }\n")

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(otherDir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(oldWd)

	out, _, err := Preprocess(path)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(out, "x = 1") {
		t.Errorf("expected the entry file's own directory to be searched for a nested include, got:\n%s", out)
	}
}

func TestPreprocessRecursiveMacroErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.c", "#define A B\n#define B A\nfunction main() { uint32 x = A; }\n")

	_, _, err := Preprocess(path)
	if err == nil {
		t.Fatal("expected a macro non-termination error")
	}
}

func TestPreprocessUndef(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.c", "#define X 1\n#undef X\nfunction main() { uint32 x = X; }\n")

	out, _, err := Preprocess(path)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(out, "x = X") {
		t.Errorf("expected X to remain unexpanded after #undef, got:\n%s", out)
	}
}
