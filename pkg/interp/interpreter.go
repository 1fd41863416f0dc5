package interp

import (
	"fmt"
	"os"

	"regvm/pkg/compiler"
)

// signalKind identifies non-local control flow bubbling up out of statement
// execution: an explicit alternative to exceptions for return/break/continue.
type signalKind int

const (
	sigNone signalKind = iota
	sigReturn
	sigBreak
	sigContinue
)

// signal carries non-local control flow up through execStmt/execBlock.
type signal struct {
	kind  signalKind
	value uint32
	typ   compiler.TypeName
}

// numRegisters is the size of the machine's general register file. r31 is
// reserved as the program counter and is never writable from source.
const numRegisters = 32

const pcRegister = 31

// Interpreter tree-walks a parsed Program, evaluating it directly rather
// than lowering to assembly.
type Interpreter struct {
	program   *compiler.Program
	functions map[string]*compiler.FunctionDecl
	handlers  map[string]*compiler.FunctionDecl // interrupt name -> ISR

	global *Environment
	mem    *Memory

	registers         [numRegisters]uint32
	registerTypes     [numRegisters]compiler.TypeName
	interruptsEnabled bool

	gpio  map[uint32]*GPIOPin
	uart  UARTState
	timer TimerState

	out func(b byte) // sink for program-visible output (uart_write); may be nil

	// StepHook, when set, is called before every statement executes. A
	// debugger uses it to pause the interpreter at source-line granularity.
	StepHook func(compiler.Position)
}

// Registers returns a snapshot of the general register file.
func (in *Interpreter) Registers() [numRegisters]uint32 { return in.registers }

// GPIO returns the live GPIO pin table; callers must not mutate it.
func (in *Interpreter) GPIO() map[uint32]*GPIOPin { return in.gpio }

// UART returns a snapshot of the UART peripheral state.
func (in *Interpreter) UART() UARTState { return in.uart }

// Timer returns a snapshot of the timer peripheral state.
func (in *Interpreter) Timer() TimerState { return in.timer }

// New builds an Interpreter ready to run program. out receives every byte
// written via uart_write; pass nil to discard.
func New(program *compiler.Program, out func(b byte)) (*Interpreter, *compiler.Diagnostic) {
	in := &Interpreter{
		program:   program,
		functions: make(map[string]*compiler.FunctionDecl),
		handlers:  make(map[string]*compiler.FunctionDecl),
		global:    NewEnvironment(nil),
		mem:       NewMemory(),
		gpio:      make(map[uint32]*GPIOPin),
		out:       out,
	}
	in.uart.TxReady = true
	in.uart.sink = out
	for _, fn := range program.Functions {
		if _, dup := in.functions[fn.Name]; dup {
			return nil, newRuntimeErr(fn.Pos, "duplicate function %q", fn.Name)
		}
		in.functions[fn.Name] = fn
		if fn.IsInterrupt {
			in.handlers[fn.Name] = fn
		}
	}
	for _, g := range program.Globals {
		if diag := in.execStmtInto(g, in.global); diag != nil {
			return nil, diag
		}
	}
	return in, nil
}

func newRuntimeErr(pos compiler.Position, format string, args ...any) *compiler.Diagnostic {
	return &compiler.Diagnostic{Kind: compiler.RuntimeError, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Run locates and executes "main", returning the value of its return
// statement, or 0 when it ends without one.
func (in *Interpreter) Run() (uint32, *compiler.Diagnostic) {
	main, ok := in.functions["main"]
	if !ok {
		return 0, newRuntimeErr(compiler.Position{}, "no main function defined")
	}
	v, _, diag := in.callFunction(main, nil)
	return v, diag
}

// Trigger runs the interrupt handler registered under name as an immediate
// call. While interrupts are disabled (until the program calls
// enable_interrupts) it does nothing and returns nil; an unknown name is a
// runtime error. It is the external injection point a debugger or test
// harness uses to simulate hardware interrupts firing.
func (in *Interpreter) Trigger(name string) *compiler.Diagnostic {
	if !in.interruptsEnabled {
		return nil
	}
	handler, ok := in.handlers[name]
	if !ok {
		return newRuntimeErr(compiler.Position{}, "no interrupt handler named %q", name)
	}
	_, _, diag := in.callFunction(handler, nil)
	return diag
}

func (in *Interpreter) callFunction(fn *compiler.FunctionDecl, args []uint32) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	if len(args) != len(fn.Params) {
		return 0, 0, newRuntimeErr(fn.Pos, "%s expects %d argument(s), got %d", fn.Name, len(fn.Params), len(args))
	}
	// Function scopes always parent to global, never to the caller: locals
	// of one function are never visible from another.
	env := NewEnvironment(in.global)
	for i, p := range fn.Params {
		// A pointer parameter's value is the address it holds, stored the
		// same way as any scalar; eval(VarRef) reloads it transparently.
		cell := &Cell{Type: p.Type, Addr: in.mem.Alloc(1), IsPointer: p.PointerLevel > 0}
		if err := in.mem.StoreWord(cell.Addr, args[i]); err != nil {
			return 0, 0, newRuntimeErr(fn.Pos, "%v", err)
		}
		env.Declare(p.Name, cell)
	}
	sig, diag := in.execBlock(fn.Body, env)
	if diag != nil {
		return 0, 0, diag
	}
	if sig.kind == sigReturn {
		return sig.value, sig.typ, nil
	}
	return 0, compiler.TypeU32, nil
}

func (in *Interpreter) execBlock(b *compiler.BlockStmt, parent *Environment) (signal, *compiler.Diagnostic) {
	env := NewEnvironment(parent)
	for _, s := range b.Stmts {
		sig, diag := in.execStmt(s, env)
		if diag != nil {
			return signal{}, diag
		}
		if sig.kind != sigNone {
			return sig, nil
		}
	}
	return signal{}, nil
}

// execStmtInto executes a single (non-block) statement directly in env,
// used for global declarations which have no enclosing block.
func (in *Interpreter) execStmtInto(s compiler.Stmt, env *Environment) *compiler.Diagnostic {
	_, diag := in.execStmt(s, env)
	return diag
}

func (in *Interpreter) execStmt(s compiler.Stmt, env *Environment) (signal, *compiler.Diagnostic) {
	if in.StepHook != nil {
		in.StepHook(s.Position())
	}
	switch st := s.(type) {
	case *compiler.VariableDecl:
		return signal{}, in.execVarDecl(st, env)
	case *compiler.ArrayDecl:
		return signal{}, in.execArrayDecl(st, env)
	case *compiler.PointerDecl:
		return signal{}, in.execPointerDecl(st, env)
	case *compiler.Assignment:
		_, _, diag := in.evalAssignment(st, env)
		return signal{}, diag
	case *compiler.ExprStmt:
		_, _, diag := in.eval(st.Expr, env)
		return signal{}, diag
	case *compiler.ReturnStmt:
		if st.Expr == nil {
			return signal{kind: sigReturn}, nil
		}
		v, t, diag := in.eval(st.Expr, env)
		if diag != nil {
			return signal{}, diag
		}
		return signal{kind: sigReturn, value: v, typ: t}, nil
	case *compiler.BreakStmt:
		return signal{kind: sigBreak}, nil
	case *compiler.ContinueStmt:
		return signal{kind: sigContinue}, nil
	case *compiler.BlockStmt:
		return in.execBlock(st, env)
	case *compiler.IfStmt:
		v, _, diag := in.eval(st.Condition, env)
		if diag != nil {
			return signal{}, diag
		}
		if v != 0 {
			return in.execStmt(st.Then, env)
		}
		if st.Else != nil {
			return in.execStmt(st.Else, env)
		}
		return signal{}, nil
	case *compiler.WhileStmt:
		for {
			v, _, diag := in.eval(st.Condition, env)
			if diag != nil {
				return signal{}, diag
			}
			if v == 0 {
				return signal{}, nil
			}
			sig, diag := in.execStmt(st.Body, env)
			if diag != nil {
				return signal{}, diag
			}
			if sig.kind == sigBreak {
				return signal{}, nil
			}
			if sig.kind == sigReturn {
				return sig, nil
			}
		}
	case *compiler.DoWhileStmt:
		for {
			sig, diag := in.execStmt(st.Body, env)
			if diag != nil {
				return signal{}, diag
			}
			if sig.kind == sigBreak {
				return signal{}, nil
			}
			if sig.kind == sigReturn {
				return sig, nil
			}
			v, _, diag := in.eval(st.Condition, env)
			if diag != nil {
				return signal{}, diag
			}
			if v == 0 {
				return signal{}, nil
			}
		}
	case *compiler.ForStmt:
		loopEnv := NewEnvironment(env)
		if st.Init != nil {
			if _, diag := in.execStmt(st.Init, loopEnv); diag != nil {
				return signal{}, diag
			}
		}
		for {
			if st.Cond != nil {
				v, _, diag := in.eval(st.Cond, loopEnv)
				if diag != nil {
					return signal{}, diag
				}
				if v == 0 {
					return signal{}, nil
				}
			}
			sig, diag := in.execStmt(st.Body, loopEnv)
			if diag != nil {
				return signal{}, diag
			}
			if sig.kind == sigBreak {
				return signal{}, nil
			}
			if sig.kind == sigReturn {
				return sig, nil
			}
			if st.Post != nil {
				if _, diag := in.execStmt(st.Post, loopEnv); diag != nil {
					return signal{}, diag
				}
			}
		}
	case *compiler.AsmStmt:
		fmt.Fprintf(os.Stderr, "warning: %s: inline asm block ignored by the interpreter\n", st.Pos)
		return signal{}, nil
	default:
		return signal{}, newRuntimeErr(s.Position(), "unsupported statement %T", s)
	}
}

func (in *Interpreter) execVarDecl(d *compiler.VariableDecl, env *Environment) *compiler.Diagnostic {
	var v uint32
	if d.Init != nil {
		val, _, diag := in.eval(d.Init, env)
		if diag != nil {
			return diag
		}
		v = val
	}
	cell := &Cell{Type: d.Type, IsVolatile: d.IsVolatile, IsRegister: d.IsRegister, RegisterNo: d.RegisterNo}
	if d.IsRegister {
		if d.RegisterNo < 0 || d.RegisterNo >= pcRegister {
			return newRuntimeErr(d.Pos, "register %d is out of range", d.RegisterNo)
		}
		in.registers[d.RegisterNo] = v
		in.registerTypes[d.RegisterNo] = d.Type
	} else {
		cell.Addr = in.mem.Alloc(1)
		if err := in.mem.StoreWord(cell.Addr, v); err != nil {
			return newRuntimeErr(d.Pos, "%v", err)
		}
	}
	env.Declare(d.Name, cell)
	return nil
}

func (in *Interpreter) execArrayDecl(d *compiler.ArrayDecl, env *Environment) *compiler.Diagnostic {
	cell := &Cell{Type: d.Type, IsArray: true, ArrayLen: d.Size}
	cell.Addr = in.mem.Alloc(d.Size)
	for i := 0; i < d.Size; i++ {
		var v uint32
		if i < len(d.Init) {
			val, _, diag := in.eval(d.Init[i], env)
			if diag != nil {
				return diag
			}
			v = val
		}
		if err := in.mem.StoreWord(cell.Addr+uint32(i)*4, v); err != nil {
			return newRuntimeErr(d.Pos, "%v", err)
		}
	}
	env.Declare(d.Name, cell)
	return nil
}

func (in *Interpreter) execPointerDecl(d *compiler.PointerDecl, env *Environment) *compiler.Diagnostic {
	var target uint32
	if d.Init != nil {
		v, _, diag := in.eval(d.Init, env)
		if diag != nil {
			return diag
		}
		target = v
	}
	cell := &Cell{Type: d.Type, IsPointer: true}
	cell.Addr = in.mem.Alloc(1)
	if err := in.mem.StoreWord(cell.Addr, target); err != nil {
		return newRuntimeErr(d.Pos, "%v", err)
	}
	env.Declare(d.Name, cell)
	return nil
}
