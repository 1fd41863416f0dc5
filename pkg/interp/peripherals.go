package interp

import "fmt"

// GPIOPin is the configured state of one general-purpose pin.
type GPIOPin struct {
	Direction uint32
	Mode      uint32
	Value     uint32
}

// UARTState mirrors a minimal memory-mapped UART.
type UARTState struct {
	BaudRate uint32
	TxReady  bool
	RxReady  bool
	Data     byte
	sink     func(b byte) // where uart_write bytes are delivered; nil discards
}

// TimerState mirrors a minimal periodic timer.
type TimerState struct {
	Mode    uint32
	Period  uint32
	Value   uint32
	Running bool
	Expired bool
}

// intrinsic is one hardware-library function: a fixed arity and a handler
// that runs against the interpreter's peripheral state.
type intrinsic struct {
	arity   int
	handler func(in *Interpreter, args []uint32) (uint32, error)
}

// intrinsics is the closed table of hardware functions callable from a
// program, keyed by name. Grounded on the exact name/arity/effect set the
// original interpreter implements.
var intrinsics = map[string]intrinsic{
	"gpio_set": {3, func(in *Interpreter, a []uint32) (uint32, error) {
		in.gpio[a[0]] = &GPIOPin{Direction: a[1], Mode: a[2]}
		return 0, nil
	}},
	"gpio_read": {1, func(in *Interpreter, a []uint32) (uint32, error) {
		pin, ok := in.gpio[a[0]]
		if !ok {
			return 0, fmt.Errorf("GPIO pin %d not configured", a[0])
		}
		return pin.Value, nil
	}},
	"gpio_write": {2, func(in *Interpreter, a []uint32) (uint32, error) {
		pin, ok := in.gpio[a[0]]
		if !ok {
			return 0, fmt.Errorf("GPIO pin %d not configured", a[0])
		}
		pin.Value = a[1] & 1
		return 0, nil
	}},

	"uart_set_baud": {1, func(in *Interpreter, a []uint32) (uint32, error) {
		in.uart.BaudRate = a[0]
		return 0, nil
	}},
	"uart_get_status": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		status := uint32(0)
		if in.uart.TxReady {
			status |= 1
		}
		if in.uart.RxReady {
			status |= 2
		}
		return status, nil
	}},
	"uart_read": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		if !in.uart.RxReady {
			return 0, nil
		}
		in.uart.RxReady = false
		return uint32(in.uart.Data), nil
	}},
	"uart_write": {1, func(in *Interpreter, a []uint32) (uint32, error) {
		if !in.uart.TxReady {
			return 0, fmt.Errorf("UART TX not ready")
		}
		b := byte(a[0])
		in.uart.Data = b
		if in.uart.sink != nil {
			in.uart.sink(b)
		}
		return 0, nil
	}},

	"timer_set_mode": {1, func(in *Interpreter, a []uint32) (uint32, error) {
		in.timer.Mode = a[0]
		return 0, nil
	}},
	"timer_set_period": {1, func(in *Interpreter, a []uint32) (uint32, error) {
		in.timer.Period = a[0]
		return 0, nil
	}},
	"timer_start": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		in.timer.Running = true
		in.timer.Value = 0
		in.timer.Expired = false
		return 0, nil
	}},
	"timer_stop": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		in.timer.Running = false
		return 0, nil
	}},
	"timer_reset": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		in.timer.Value = 0
		in.timer.Expired = false
		return 0, nil
	}},
	"timer_get_value": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		return in.timer.Value, nil
	}},
	"timer_expired": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		if in.timer.Running && in.timer.Period > 0 && !in.timer.Expired {
			in.timer.Expired = true
			return 1, nil
		}
		return 0, nil
	}},

	"delay_ms":     {1, func(in *Interpreter, a []uint32) (uint32, error) { return 0, nil }},
	"delay_us":     {1, func(in *Interpreter, a []uint32) (uint32, error) { return 0, nil }},
	"delay_cycles": {1, func(in *Interpreter, a []uint32) (uint32, error) { return 0, nil }},

	"enable_interrupts": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		in.interruptsEnabled = true
		return 0, nil
	}},
	"disable_interrupts": {0, func(in *Interpreter, a []uint32) (uint32, error) {
		in.interruptsEnabled = false
		return 0, nil
	}},

	"set_bit": {2, func(in *Interpreter, a []uint32) (uint32, error) {
		return a[0] | (1 << (a[1] & 0x1F)), nil
	}},
	"clear_bit": {2, func(in *Interpreter, a []uint32) (uint32, error) {
		return a[0] &^ (1 << (a[1] & 0x1F)), nil
	}},
	"toggle_bit": {2, func(in *Interpreter, a []uint32) (uint32, error) {
		return a[0] ^ (1 << (a[1] & 0x1F)), nil
	}},
	"get_bit": {2, func(in *Interpreter, a []uint32) (uint32, error) {
		if a[0]&(1<<(a[1]&0x1F)) != 0 {
			return 1, nil
		}
		return 0, nil
	}},
}

func isIntrinsic(name string) bool {
	_, ok := intrinsics[name]
	return ok
}
