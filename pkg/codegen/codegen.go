// Package codegen lowers a parsed program into textual assembly for the
// register-machine ISA. It never sees source text: everything it needs
// (types, positions) travels on the AST produced by pkg/compiler.
package codegen

import (
	"fmt"
	"strings"

	"regvm/pkg/compiler"
)

// varLoc is where one variable lives during codegen: either a dedicated
// register, or a memory slot (for arrays, pointer-taken locals, and every
// global).
type varLoc struct {
	typ       compiler.TypeName
	isArray   bool
	arrayLen  int
	inMemory  bool
	reg       int    // valid when !inMemory
	label     string // valid when inMemory and global
	frameSlot int     // valid when inMemory and local (byte offset from frame base)
	isGlobal  bool
	// isPointer marks a variable declared with a leading '*'. typ still
	// holds the pointee's scalar type; isPointer is the orthogonal fact
	// that '+'/'-' against this variable's value scales the other
	// operand by the pointee size.
	isPointer bool
}

// loopLabels is where break/continue jump to for the innermost enclosing loop.
type loopLabels struct {
	continueTo string
	breakTo    string
}

// Generator walks a Program and emits assembly text.
type Generator struct {
	out         strings.Builder
	regs        *Allocator
	globals     map[string]*varLoc
	locals      map[string]*varLoc
	loopStack   []loopLabels
	labelCount  map[string]int
	function    string
	body        *compiler.BlockStmt
	needsDivLib bool
}

func New() *Generator {
	return &Generator{
		globals:    make(map[string]*varLoc),
		labelCount: make(map[string]int),
	}
}

func (g *Generator) line(format string, args ...any) {
	fmt.Fprintf(&g.out, format+"\n", args...)
}

func (g *Generator) comment(format string, args ...any) {
	g.line("    ; "+format, args...)
}

func (g *Generator) newLabel(category string) string {
	n := g.labelCount[category]
	g.labelCount[category]++
	return fmt.Sprintf("__%s%d", category, n)
}

// Generate lowers program into a complete assembly listing: header, a data
// section for globals, and a text section with the entry function first.
func Generate(program *compiler.Program) (string, error) {
	g := New()
	g.line("; generated assembly, target: 32-bit register machine")
	g.line("format text")
	g.line("include \"isa.inc\"")
	g.line("")

	for _, s := range program.Globals {
		if err := g.declareGlobal(s); err != nil {
			return "", err
		}
	}

	var entry *compiler.FunctionDecl
	for _, fn := range program.Functions {
		if fn.Name == "main" {
			entry = fn
		}
	}
	if entry == nil {
		return "", fmt.Errorf("codegen: no main function defined")
	}

	g.line("start:")
	g.line("    CALL main")
	g.line("    HLT")
	g.line("")

	if err := g.genFunction(entry); err != nil {
		return "", err
	}
	for _, fn := range program.Functions {
		if fn == entry {
			continue
		}
		if err := g.genFunction(fn); err != nil {
			return "", err
		}
	}

	if g.needsDivLib {
		g.emitDivisionLibrary()
	}

	g.line("")
	g.line("; data section")
	for name, loc := range g.globals {
		if loc.isArray {
			g.line("%s: .space %d", loc.label, loc.arrayLen*4)
		} else {
			g.line("%s: .word 0  ; %s", loc.label, name)
		}
	}

	return g.out.String(), nil
}

func (g *Generator) declareGlobal(s compiler.Stmt) error {
	switch d := s.(type) {
	case *compiler.VariableDecl:
		g.globals[d.Name] = &varLoc{typ: d.Type, inMemory: true, isGlobal: true, label: "G_" + d.Name}
	case *compiler.ArrayDecl:
		g.globals[d.Name] = &varLoc{typ: d.Type, isArray: true, arrayLen: d.Size, inMemory: true, isGlobal: true, label: "G_" + d.Name}
	case *compiler.PointerDecl:
		g.globals[d.Name] = &varLoc{typ: d.Type, inMemory: true, isGlobal: true, isPointer: true, label: "G_" + d.Name}
	default:
		return fmt.Errorf("codegen: unsupported global declaration %T", s)
	}
	return nil
}

// takesAddress reports whether name ever appears as the operand of & inside
// body; such locals cannot live in a register and are given a frame slot
// instead, mirroring the interpreter's own address-of design decision.
func takesAddress(body *compiler.BlockStmt, name string) bool {
	found := false
	var walkExpr func(compiler.Expr)
	var walkStmt func(compiler.Stmt)
	walkExpr = func(e compiler.Expr) {
		if e == nil || found {
			return
		}
		switch n := e.(type) {
		case *compiler.UnaryExpr:
			if n.Op == compiler.AND {
				if ref, ok := n.Operand.(*compiler.VarRef); ok && ref.Name == name {
					found = true
					return
				}
			}
			walkExpr(n.Operand)
		case *compiler.BinaryExpr:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *compiler.LogicalExpr:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *compiler.PostfixExpr:
			walkExpr(n.Operand)
		case *compiler.FunctionCall:
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *compiler.IndexExpr:
			walkExpr(n.Base)
			walkExpr(n.Index)
		}
	}
	walkStmt = func(s compiler.Stmt) {
		if s == nil || found {
			return
		}
		switch n := s.(type) {
		case *compiler.VariableDecl:
			walkExpr(n.Init)
		case *compiler.ArrayDecl:
			for _, e := range n.Init {
				walkExpr(e)
			}
		case *compiler.PointerDecl:
			walkExpr(n.Init)
		case *compiler.Assignment:
			walkExpr(n.Target)
			walkExpr(n.Value)
		case *compiler.ExprStmt:
			walkExpr(n.Expr)
		case *compiler.ReturnStmt:
			walkExpr(n.Expr)
		case *compiler.BlockStmt:
			for _, st := range n.Stmts {
				walkStmt(st)
			}
		case *compiler.IfStmt:
			walkExpr(n.Condition)
			walkStmt(n.Then)
			walkStmt(n.Else)
		case *compiler.WhileStmt:
			walkExpr(n.Condition)
			walkStmt(n.Body)
		case *compiler.DoWhileStmt:
			walkStmt(n.Body)
			walkExpr(n.Condition)
		case *compiler.ForStmt:
			walkStmt(n.Init)
			walkExpr(n.Cond)
			walkStmt(n.Post)
			walkStmt(n.Body)
		}
	}
	walkStmt(body)
	return found
}

func (g *Generator) genFunction(fn *compiler.FunctionDecl) error {
	g.function = fn.Name
	g.body = fn.Body
	g.regs = NewAllocator()
	g.locals = make(map[string]*varLoc)

	g.line("%s:", fn.Name)
	for i, p := range fn.Params {
		loc := &varLoc{typ: p.Type, isPointer: p.PointerLevel > 0}
		if i < 5 {
			reg, _ := g.regs.AllocArg()
			loc.reg = reg
		} else {
			// Arguments past the fifth were pushed by the caller before CALL
			// and are read straight off the incoming stack frame; nothing to
			// spill here.
			loc.inMemory = true
			loc.frameSlot = 4 * (i - 5)
			loc.isGlobal = false
		}
		g.locals[p.Name] = loc
	}

	if err := g.genBlock(fn.Body); err != nil {
		return err
	}

	if fn.IsInterrupt {
		g.line("    RETI")
	} else {
		g.line("    RET")
	}
	g.line("")
	return nil
}

func (g *Generator) genBlock(b *compiler.BlockStmt) error {
	declared := make([]string, 0)
	defer func() {
		for i := len(declared) - 1; i >= 0; i-- {
			name := declared[i]
			if loc, ok := g.locals[name]; ok && !loc.inMemory {
				g.regs.FreeLocal(loc.reg)
			}
			delete(g.locals, name)
		}
	}()

	for _, s := range b.Stmts {
		if err := g.genStmt(s, &declared); err != nil {
			return err
		}
	}
	return nil
}

// declareLocal gives name a register when possible. A local whose address
// is ever taken with & cannot live in a register, mirroring the same
// choice the interpreter makes for address-of.
func (g *Generator) declareLocal(name string, typ compiler.TypeName, declared *[]string) *varLoc {
	loc := &varLoc{typ: typ}
	addressed := g.body != nil && takesAddress(g.body, name)
	if reg, ok := g.regs.AllocLocal(); ok && !addressed {
		loc.reg = reg
	} else {
		loc.inMemory = true
		loc.frameSlot = g.regs.AllocSpillSlot()
	}
	g.locals[name] = loc
	*declared = append(*declared, name)
	return loc
}

func (g *Generator) lookup(name string) (*varLoc, error) {
	if loc, ok := g.locals[name]; ok {
		return loc, nil
	}
	if loc, ok := g.globals[name]; ok {
		return loc, nil
	}
	return nil, fmt.Errorf("codegen: undeclared identifier %q", name)
}

func (g *Generator) genStmt(s compiler.Stmt, declared *[]string) error {
	switch n := s.(type) {
	case *compiler.VariableDecl:
		loc := g.declareLocal(n.Name, n.Type, declared)
		if n.Init != nil {
			reg, err := g.genExpr(n.Init)
			if err != nil {
				return err
			}
			g.storeVar(loc, reg)
			g.regs.FreeTemp(reg)
		}
		return nil

	case *compiler.ArrayDecl:
		loc := &varLoc{typ: n.Type, isArray: true, arrayLen: n.Size, inMemory: true}
		loc.frameSlot = g.regs.AllocSpillSlot()
		for i := 1; i < n.Size; i++ {
			g.regs.AllocSpillSlot()
		}
		g.locals[n.Name] = loc
		*declared = append(*declared, n.Name)
		for i, e := range n.Init {
			reg, err := g.genExpr(e)
			if err != nil {
				return err
			}
			g.comment("%s[%d] = ...", n.Name, i)
			g.line("    ST [FP+%d], r%d", loc.frameSlot+i*4, reg)
			g.regs.FreeTemp(reg)
		}
		return nil

	case *compiler.PointerDecl:
		loc := &varLoc{typ: n.Type, inMemory: true, isPointer: true}
		loc.frameSlot = g.regs.AllocSpillSlot()
		g.locals[n.Name] = loc
		*declared = append(*declared, n.Name)
		if n.Init != nil {
			reg, err := g.genExpr(n.Init)
			if err != nil {
				return err
			}
			g.line("    ST [FP+%d], r%d", loc.frameSlot, reg)
			g.regs.FreeTemp(reg)
		}
		return nil

	case *compiler.Assignment:
		return g.genAssignment(n)

	case *compiler.ExprStmt:
		reg, err := g.genExpr(n.Expr)
		if err != nil {
			return err
		}
		g.regs.FreeTemp(reg)
		return nil

	case *compiler.ReturnStmt:
		if n.Expr != nil {
			reg, err := g.genExpr(n.Expr)
			if err != nil {
				return err
			}
			g.line("    MOV r%d, r%d", returnRegister, reg)
			g.regs.FreeTemp(reg)
		}
		if g.function != "" {
			g.line("    RET")
		}
		return nil

	case *compiler.BreakStmt:
		if len(g.loopStack) == 0 {
			return fmt.Errorf("codegen: break outside of loop")
		}
		g.line("    JMP %s", g.loopStack[len(g.loopStack)-1].breakTo)
		return nil

	case *compiler.ContinueStmt:
		if len(g.loopStack) == 0 {
			return fmt.Errorf("codegen: continue outside of loop")
		}
		g.line("    JMP %s", g.loopStack[len(g.loopStack)-1].continueTo)
		return nil

	case *compiler.BlockStmt:
		return g.genBlock(n)

	case *compiler.IfStmt:
		reg, err := g.genExpr(n.Condition)
		if err != nil {
			return err
		}
		elseLabel := g.newLabel("else")
		endLabel := g.newLabel("endif")
		g.line("    JZ r%d, %s", reg, elseLabel)
		g.regs.FreeTemp(reg)
		if err := g.genStmt(n.Then, declared); err != nil {
			return err
		}
		g.line("    JMP %s", endLabel)
		g.line("%s:", elseLabel)
		if n.Else != nil {
			if err := g.genStmt(n.Else, declared); err != nil {
				return err
			}
		}
		g.line("%s:", endLabel)
		return nil

	case *compiler.WhileStmt:
		start := g.newLabel("while")
		end := g.newLabel("endwhile")
		g.loopStack = append(g.loopStack, loopLabels{continueTo: start, breakTo: end})
		g.line("%s:", start)
		reg, err := g.genExpr(n.Condition)
		if err != nil {
			return err
		}
		g.line("    JZ r%d, %s", reg, end)
		g.regs.FreeTemp(reg)
		if err := g.genStmt(n.Body, declared); err != nil {
			return err
		}
		g.line("    JMP %s", start)
		g.line("%s:", end)
		g.loopStack = g.loopStack[:len(g.loopStack)-1]
		return nil

	case *compiler.DoWhileStmt:
		start := g.newLabel("dowhile")
		cond := g.newLabel("dowhilecond")
		end := g.newLabel("enddowhile")
		g.loopStack = append(g.loopStack, loopLabels{continueTo: cond, breakTo: end})
		g.line("%s:", start)
		if err := g.genStmt(n.Body, declared); err != nil {
			return err
		}
		g.line("%s:", cond)
		reg, err := g.genExpr(n.Condition)
		if err != nil {
			return err
		}
		g.line("    JNZ r%d, %s", reg, start)
		g.regs.FreeTemp(reg)
		g.line("%s:", end)
		g.loopStack = g.loopStack[:len(g.loopStack)-1]
		return nil

	case *compiler.ForStmt:
		var innerDeclared []string
		if n.Init != nil {
			if err := g.genStmt(n.Init, &innerDeclared); err != nil {
				return err
			}
		}
		start := g.newLabel("for")
		post := g.newLabel("forpost")
		end := g.newLabel("endfor")
		g.loopStack = append(g.loopStack, loopLabels{continueTo: post, breakTo: end})
		g.line("%s:", start)
		if n.Cond != nil {
			reg, err := g.genExpr(n.Cond)
			if err != nil {
				return err
			}
			g.line("    JZ r%d, %s", reg, end)
			g.regs.FreeTemp(reg)
		}
		if err := g.genStmt(n.Body, &innerDeclared); err != nil {
			return err
		}
		g.line("%s:", post)
		if n.Post != nil {
			if err := g.genStmt(n.Post, &innerDeclared); err != nil {
				return err
			}
		}
		g.line("    JMP %s", start)
		g.line("%s:", end)
		g.loopStack = g.loopStack[:len(g.loopStack)-1]
		for _, name := range innerDeclared {
			if loc, ok := g.locals[name]; ok && !loc.inMemory {
				g.regs.FreeLocal(loc.reg)
			}
			delete(g.locals, name)
		}
		return nil

	case *compiler.AsmStmt:
		g.line("    ; asm block from %s", n.Pos)
		for _, raw := range strings.Split(n.Instruction, "\n") {
			text := strings.TrimSpace(raw)
			if text == "" {
				continue
			}
			g.line("\t%s", text)
		}
		g.line("    ; end asm block")
		return nil

	default:
		return fmt.Errorf("codegen: unsupported statement %T", s)
	}
}

// storeVar writes reg into loc's home, whether that is a dedicated register
// or a memory slot.
func (g *Generator) storeVar(loc *varLoc, reg int) {
	if !loc.inMemory {
		g.line("    MOV r%d, r%d", loc.reg, reg)
		return
	}
	if loc.isGlobal {
		g.line("    ST [%s], r%d", loc.label, reg)
	} else {
		g.line("    ST [FP+%d], r%d", loc.frameSlot, reg)
	}
}

// loadVar reads loc's value into a freshly allocated temp register.
func (g *Generator) loadVar(loc *varLoc) (int, error) {
	if !loc.inMemory {
		reg, err := g.regs.AllocTemp(g.function)
		if err != nil {
			return 0, err
		}
		g.line("    MOV r%d, r%d", reg, loc.reg)
		return reg, nil
	}
	reg, err := g.regs.AllocTemp(g.function)
	if err != nil {
		return 0, err
	}
	if loc.isGlobal {
		g.line("    LD r%d, [%s]", reg, loc.label)
	} else {
		g.line("    LD r%d, [FP+%d]", reg, loc.frameSlot)
	}
	return reg, nil
}
