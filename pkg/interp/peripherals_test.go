package interp_test

import (
	"os"
	"path/filepath"
	"testing"

	"regvm/pkg/interp"
	"regvm/pkg/pipeline"
)

func TestInterpretGPIOSetWriteRead(t *testing.T) {
	result, _ := run(t, `
		function main() {
			gpio_set(0, 1, 0);
			gpio_write(0, 1);
			return gpio_read(0);
		}
	`)
	if result != 1 {
		t.Errorf("got %d, want 1", result)
	}
}

func TestInterpretGPIOReadUnconfiguredPinErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.c")
	src := `
		function main() {
			return gpio_read(9);
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
		t.Fatal("expected a runtime error reading an unconfigured GPIO pin")
	}
}

func TestInterpretBitHelpers(t *testing.T) {
	result, _ := run(t, `
		function main() {
			uint32 v = 0;
			v = set_bit(v, 3);
			uint32 got = get_bit(v, 3);
			v = clear_bit(v, 3);
			return got + get_bit(v, 3);
		}
	`)
	if result != 1 {
		t.Errorf("got %d, want 1 (bit set then cleared)", result)
	}
}

func TestInterpretTimerExpiredFiresOnce(t *testing.T) {
	result, _ := run(t, `
		function main() {
			timer_set_period(10);
			timer_start();
			uint32 first = timer_expired();
			uint32 second = timer_expired();
			return first * 2 + second;
		}
	`)
	if result != 2 {
		t.Errorf("got %d, want 2 (expires once, then stays quiet)", result)
	}
}

func TestInterpretUARTWriteKeepsTxReady(t *testing.T) {
	// New() starts the UART with TxReady set and nothing in this language
	// can clear it, so this checks the success path: uart_write runs and
	// the TX_READY status bit is still set afterwards.
	result, _ := run(t, `
		function main() {
			uart_write(1);
			return uart_get_status();
		}
	`)
	if result&1 == 0 {
		t.Errorf("got status %#x, want TX_READY bit set", result)
	}
}
