package codegen_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"regvm/pkg/codegen"
	"regvm/pkg/pipeline"
)

func buildAndGenerate(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.c")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	program, err := pipeline.BuildAST(path)
	if err != nil {
		t.Fatalf("BuildAST: %v", err)
	}
	asm, err := codegen.Generate(program)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return asm
}

func TestGenerateEmitsEntryAndReturn(t *testing.T) {
	asm := buildAndGenerate(t, `
		function main() {
			return 42;
		}
	`)
	for _, want := range []string{"start:", "CALL main", "HLT", "main:", "RET"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected generated assembly to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestGenerateRequiresMain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.c")
	os.WriteFile(path, []byte("function helper() { return 0; }\n"), 0o644)
	program, err := pipeline.BuildAST(path)
	if err != nil {
		t.Fatalf("BuildAST: %v", err)
	}
	if _, err := codegen.Generate(program); err == nil {
		t.Fatal("expected an error when no main function is defined")
	}
}

func TestGenerateEmitsGlobalDataSection(t *testing.T) {
	asm := buildAndGenerate(t, `
		uint32 counter = 0;
		function main() {
			counter = counter + 1;
			return counter;
		}
	`)
	if !strings.Contains(asm, "G_counter") {
		t.Errorf("expected a G_counter label in the data section, got:\n%s", asm)
	}
}

func TestGenerateAcceptsUntypedParam(t *testing.T) {
	asm := buildAndGenerate(t, `
		function factorial(n) {
			if (n <= 1) {
				return 1;
			}
			return n * factorial(n - 1);
		}
		function main() {
			return factorial(5);
		}
	`)
	if !strings.Contains(asm, "factorial:") || !strings.Contains(asm, "CALL factorial") {
		t.Errorf("expected a compiled factorial function reachable from main, got:\n%s", asm)
	}
}

func TestGenerateLowersDivisionToRuntimeLibrary(t *testing.T) {
	asm := buildAndGenerate(t, `
		function main() {
			uint32 a = 10;
			uint32 b = 3;
			return a / b;
		}
	`)
	if !strings.Contains(asm, "__udiv32") {
		t.Errorf("expected a call into the unsigned division library, got:\n%s", asm)
	}
}

func TestGenerateLowersSignedDivisionToSignedLibrary(t *testing.T) {
	asm := buildAndGenerate(t, `
		function main() {
			int32 a = -10;
			int32 b = 3;
			return a / b;
		}
	`)
	if !strings.Contains(asm, "__sdiv32") {
		t.Errorf("expected a call into the signed division library, got:\n%s", asm)
	}
}

func TestGenerateLowersLowerableIntrinsics(t *testing.T) {
	asm := buildAndGenerate(t, `
		function main() {
			gpio_set(0, 1, 0);
			gpio_write(0, 1);
			return gpio_read(0);
		}
	`)
	for _, want := range []string{"GPIOSET", "GPIOWR", "GPIORD"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected generated assembly to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestGenerateRejectsNonLowerableIntrinsic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.c")
	src := `
		function main() {
			timer_start();
			return 0;
		}
	`
	os.WriteFile(path, []byte(src), 0o644)
	program, err := pipeline.BuildAST(path)
	if err != nil {
		t.Fatalf("BuildAST: %v", err)
	}
	_, err = codegen.Generate(program)
	if err == nil {
		t.Fatal("expected a codegen error for a hardware intrinsic with no ISA lowering")
	}
	if !strings.Contains(err.Error(), "timer_start") {
		t.Errorf("expected the error to name the intrinsic, got: %v", err)
	}
}

func TestGenerateScalesPointerArithmeticByWordSize(t *testing.T) {
	asm := buildAndGenerate(t, `
		function main() {
			uint32 arr[5] = {10, 20, 30, 40, 50};
			uint32* p = &arr[0];
			uint32 s = 0;
			uint32 i = 0;
			while (i < 5) {
				s = s + *p;
				p = p + 1;
				i = i + 1;
			}
			return s;
		}
	`)
	// p = p + 1 must scale the "1" by the pointee size (4 bytes) rather
	// than adding it verbatim, so the interpreter and the assembled
	// program agree on the result of this loop (150). &arr[0] emits one MUL
	// for its index, so the scaling of p + 1 shows up as a second one.
	if strings.Count(asm, "MUL r") < 2 {
		t.Errorf("expected pointer arithmetic to scale by 4 via a multiply, got:\n%s", asm)
	}
}

func TestGenerateAsmBlockIsIndentedAndCommented(t *testing.T) {
	asm := buildAndGenerate(t, `
		function main() {
			asm {
				NOP
			};
			return 0;
		}
	`)
	if !strings.Contains(asm, "; asm block from") {
		t.Errorf("expected an origin comment around the asm block, got:\n%s", asm)
	}
	if !strings.Contains(asm, "\tNOP") {
		t.Errorf("expected the asm block body to be tab-indented, got:\n%s", asm)
	}
}

func TestGenerateAddressTakenLocalIsSpilled(t *testing.T) {
	asm := buildAndGenerate(t, `
		function main() {
			uint32 x = 1;
			uint32* p = &x;
			return *p;
		}
	`)
	// Address-taken locals are given a frame slot rather than a register,
	// so loading/storing them goes through [FP+...].
	if !strings.Contains(asm, "[FP+") {
		t.Errorf("expected a frame-slot access for the address-taken local, got:\n%s", asm)
	}
}
