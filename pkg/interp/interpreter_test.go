package interp_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"regvm/pkg/interp"
	"regvm/pkg/pipeline"
)

func run(t *testing.T, src string) (uint32, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.c")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	program, err := pipeline.BuildAST(path)
	if err != nil {
		t.Fatalf("BuildAST: %v", err)
	}

	var out strings.Builder
	machine, diag := interp.New(program, func(b byte) { out.WriteByte(b) })
	if diag != nil {
		t.Fatalf("New: %v", diag)
	}
	result, diag := machine.Run()
	if diag != nil {
		t.Fatalf("Run: %v", diag)
	}
	return result, out.String()
}

func TestInterpretArithmeticPrecedence(t *testing.T) {
	result, _ := run(t, `
		function main() {
			return 2 + 3 * 4;
		}
	`)
	if result != 14 {
		t.Errorf("got %d, want 14", result)
	}
}

func TestInterpretRecursiveFactorial(t *testing.T) {
	result, _ := run(t, `
		function factorial(uint32 n) {
			if (n == 0) {
				return 1;
			}
			return n * factorial(n - 1);
		}
		function main() {
			return factorial(5);
		}
	`)
	if result != 120 {
		t.Errorf("got %d, want 120", result)
	}
}

func TestInterpretRecursiveFactorialWithUntypedParam(t *testing.T) {
	// factorial(n) with no type annotation on n must still parse and run;
	// an untyped parameter is implicitly uint32.
	result, _ := run(t, `
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
	if result != 120 {
		t.Errorf("got %d, want 120", result)
	}
}

func TestInterpretIterativeFibonacci(t *testing.T) {
	result, _ := run(t, `
		function main() {
			uint32 a = 0;
			uint32 b = 1;
			uint32 i = 0;
			for (i = 0; i < 10; i = i + 1) {
				uint32 next = a + b;
				a = b;
				b = next;
			}
			return a;
		}
	`)
	if result != 55 {
		t.Errorf("got %d, want 55", result)
	}
}

func TestInterpretSignedDivisionAndShift(t *testing.T) {
	result, _ := run(t, `
		function main() {
			int32 a = -8;
			int32 b = 2;
			int32 q = a / b;
			int32 s = a >> 1;
			return q + s;
		}
	`)
	// q = -4, s (arithmetic shift of -8) = -4, sum = -8
	if int32(result) != -8 {
		t.Errorf("got %d, want -8", int32(result))
	}
}

func TestInterpretUnsignedShiftIsLogical(t *testing.T) {
	result, _ := run(t, `
		function main() {
			uint32 a = 0xFFFFFFFF;
			return a >> 28;
		}
	`)
	if result != 0xF {
		t.Errorf("got %#x, want 0xF", result)
	}
}

func TestInterpretArrayAndPointerWalk(t *testing.T) {
	result, _ := run(t, `
		function main() {
			uint32 xs[3] = {10, 20, 30};
			uint32* p = &xs[0];
			uint32 sum = 0;
			uint32 i = 0;
			for (i = 0; i < 3; i = i + 1) {
				sum = sum + xs[i];
			}
			return sum + *p;
		}
	`)
	if result != 70 {
		t.Errorf("got %d, want 70 (60 + xs[0])", result)
	}
}

func TestInterpretPointerArithmeticScalesByWordSize(t *testing.T) {
	// p = p + 1 must advance by one 4-byte element, not by one byte: the
	// one operation TestInterpretArrayAndPointerWalk never exercises.
	result, _ := run(t, `
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
	if result != 150 {
		t.Errorf("got %d, want 150", result)
	}
}

func TestInterpretRegisterVariable(t *testing.T) {
	result, _ := run(t, `
		function main() {
			register(2) uint32 x = 5;
			x = x + 1;
			return x;
		}
	`)
	if result != 6 {
		t.Errorf("got %d, want 6", result)
	}
}

func TestInterpretFunctionScopeParentsToGlobal(t *testing.T) {
	// main's local "shared" must not be visible inside helper, which has to
	// read the global "shared" instead: function scopes always parent to
	// global, never to the caller.
	result, _ := run(t, `
		uint32 shared = 100;
		function helper() {
			uint32 local = 1;
			return shared + local;
		}
		function main() {
			uint32 shared = 999;
			return helper();
		}
	`)
	if result != 101 {
		t.Errorf("got %d, want 101 (helper must not see main's local)", result)
	}
}

func TestInterpretDivisionByZeroIsRuntimeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.c")
	src := `
		function main() {
			uint32 z = 0;
			return 1 / z;
		}
	`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	program, err := pipeline.BuildAST(path)
	if err != nil {
		t.Fatalf("BuildAST: %v", err)
	}
	machine, diag := interp.New(program, nil)
	if diag != nil {
		t.Fatalf("New: %v", diag)
	}
	if _, diag := machine.Run(); diag == nil {
		t.Fatal("expected a runtime error for division by zero")
	}
}

func TestInterpretUARTWrite(t *testing.T) {
	_, out := run(t, `
		function main() {
			uart_write(65);
			return 0;
		}
	`)
	if out != "A" {
		t.Errorf("got %q, want %q", out, "A")
	}
}
