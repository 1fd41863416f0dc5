package codegen

import (
	"fmt"

	"regvm/pkg/compiler"
)

// intrinsicLowering names the ISA instruction used for one hardware
// function and how many of its arguments feed that instruction.
type intrinsicLowering struct {
	instruction string
	arity       int
	hasResult   bool
}

// lowerableIntrinsics is the subset of hardware functions the code
// generator can turn directly into ISA instructions: only GPIO and UART
// have native opcodes; every other hardware function (timers, delays, bit
// helpers, interrupt enable/disable) has no ISA equivalent and is rejected
// with a codegen error naming it.
var lowerableIntrinsics = map[string]intrinsicLowering{
	"gpio_set":      {"GPIOSET", 3, false},
	"gpio_read":     {"GPIORD", 1, true},
	"gpio_write":    {"GPIOWR", 2, false},
	"uart_set_baud": {"UARTBAUD", 1, false},
	"uart_read":     {"UARTRD", 0, true},
	"uart_write":    {"UARTWR", 1, false},
}

// hardwareIntrinsicNames is the full set the interpreter recognizes,
// including the ones with no direct ISA lowering. Kept in sync with
// pkg/interp's intrinsic table.
var hardwareIntrinsicNames = map[string]bool{
	"gpio_set": true, "gpio_read": true, "gpio_write": true,
	"uart_set_baud": true, "uart_get_status": true, "uart_read": true, "uart_write": true,
	"timer_set_mode": true, "timer_set_period": true, "timer_start": true, "timer_stop": true,
	"timer_reset": true, "timer_get_value": true, "timer_expired": true,
	"delay_ms": true, "delay_us": true, "delay_cycles": true,
	"enable_interrupts": true, "disable_interrupts": true,
	"set_bit": true, "clear_bit": true, "toggle_bit": true, "get_bit": true,
}

func (g *Generator) genIntrinsicCall(n *compiler.FunctionCall, spec intrinsicLowering) (int, error) {
	if len(n.Args) != spec.arity {
		return 0, fmt.Errorf("codegen: %s expects %d argument(s), got %d", n.Name, spec.arity, len(n.Args))
	}
	argRegs := make([]int, 0, len(n.Args))
	for _, a := range n.Args {
		reg, err := g.genExpr(a)
		if err != nil {
			return 0, err
		}
		argRegs = append(argRegs, reg)
	}

	result := argRegs
	if spec.hasResult {
		reg, err := g.regs.AllocTemp(g.function)
		if err != nil {
			return 0, err
		}
		result = append([]int{reg}, argRegs...)
	}

	switch len(result) {
	case 0:
		g.line("    %s", spec.instruction)
	case 1:
		g.line("    %s r%d", spec.instruction, result[0])
	case 2:
		g.line("    %s r%d, r%d", spec.instruction, result[0], result[1])
	default:
		g.line("    %s r%d, r%d, r%d", spec.instruction, result[0], result[1], result[2])
	}

	for _, r := range argRegs {
		g.regs.FreeTemp(r)
	}
	if spec.hasResult {
		return result[0], nil
	}
	reg, err := g.regs.AllocTemp(g.function)
	if err != nil {
		return 0, err
	}
	g.line("    LDI r%d, 0", reg)
	return reg, nil
}
