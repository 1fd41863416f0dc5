package codegen

import (
	"fmt"

	"regvm/pkg/compiler"
)

// exprType reports the type used to decide signedness for e, without
// generating any code. It mirrors the interpreter's own type propagation
// (VarRef -> declared type; literal -> u32; everything else recurses).
func (g *Generator) exprType(e compiler.Expr) compiler.TypeName {
	switch n := e.(type) {
	case *compiler.VarRef:
		if loc, err := g.lookup(n.Name); err == nil {
			return loc.typ
		}
	case *compiler.BinaryExpr:
		if g.exprType(n.Left) == compiler.TypeI32 || g.exprType(n.Right) == compiler.TypeI32 {
			return compiler.TypeI32
		}
	case *compiler.UnaryExpr:
		return g.exprType(n.Operand)
	case *compiler.IndexExpr:
		if loc, err := g.baseLoc(n.Base); err == nil {
			return loc.typ
		}
	}
	return compiler.TypeU32
}

// isPointerExpr reports whether e is a reference to a pointer-typed
// variable, so genBinary can scale the other operand of '+'/'-' by the
// pointee size instead of adding raw integers.
func (g *Generator) isPointerExpr(e compiler.Expr) bool {
	ref, ok := e.(*compiler.VarRef)
	if !ok {
		return false
	}
	loc, err := g.lookup(ref.Name)
	return err == nil && loc.isPointer
}

// scaleByWordSize multiplies reg in place by the pointee size (4 bytes),
// the same LDI/MUL idiom genIndexAddress uses to turn an element index
// into a byte offset.
func (g *Generator) scaleByWordSize(reg int) error {
	strideReg, err := g.regs.AllocTemp(g.function)
	if err != nil {
		return err
	}
	g.line("    LDI r%d, 4", strideReg)
	g.line("    MUL r%d, r%d", reg, strideReg)
	g.regs.FreeTemp(strideReg)
	return nil
}

func (g *Generator) baseLoc(e compiler.Expr) (*varLoc, error) {
	ref, ok := e.(*compiler.VarRef)
	if !ok {
		return nil, fmt.Errorf("codegen: unsupported array/pointer base expression %T", e)
	}
	return g.lookup(ref.Name)
}

// genIndexAddress computes the byte address of base[index] into a fresh
// temp register.
func (g *Generator) genIndexAddress(idx *compiler.IndexExpr) (int, error) {
	loc, err := g.baseLoc(idx.Base)
	if err != nil {
		return 0, err
	}
	idxReg, err := g.genExpr(idx.Index)
	if err != nil {
		return 0, err
	}
	strideReg, err := g.regs.AllocTemp(g.function)
	if err != nil {
		return 0, err
	}
	g.line("    LDI r%d, 4", strideReg)
	g.line("    MUL r%d, r%d", idxReg, strideReg)
	g.regs.FreeTemp(strideReg)

	baseReg, err := g.regs.AllocTemp(g.function)
	if err != nil {
		return 0, err
	}
	if loc.isGlobal {
		g.line("    LDI r%d, %s", baseReg, loc.label)
	} else {
		g.line("    LDI r%d, FP", baseReg)
		g.line("    ADDI r%d, %d", baseReg, loc.frameSlot)
	}
	g.line("    ADD r%d, r%d", baseReg, idxReg)
	g.regs.FreeTemp(idxReg)
	return baseReg, nil
}

func (g *Generator) genExpr(e compiler.Expr) (int, error) {
	switch n := e.(type) {
	case *compiler.Literal:
		reg, err := g.regs.AllocTemp(g.function)
		if err != nil {
			return 0, err
		}
		g.line("    LDI r%d, %d", reg, n.Value)
		return reg, nil

	case *compiler.VarRef:
		loc, err := g.lookup(n.Name)
		if err != nil {
			return 0, err
		}
		return g.loadVar(loc)

	case *compiler.IndexExpr:
		addr, err := g.genIndexAddress(n)
		if err != nil {
			return 0, err
		}
		g.line("    LD r%d, [r%d]", addr, addr)
		return addr, nil

	case *compiler.UnaryExpr:
		return g.genUnary(n)

	case *compiler.PostfixExpr:
		return g.genPostfix(n)

	case *compiler.LogicalExpr:
		return g.genLogical(n)

	case *compiler.BinaryExpr:
		return g.genBinary(n)

	case *compiler.FunctionCall:
		return g.genCall(n)

	default:
		return 0, fmt.Errorf("codegen: unsupported expression %T", e)
	}
}

func (g *Generator) genUnary(n *compiler.UnaryExpr) (int, error) {
	switch n.Op {
	case compiler.MINUS:
		reg, err := g.genExpr(n.Operand)
		if err != nil {
			return 0, err
		}
		g.line("    NEG r%d", reg)
		return reg, nil

	case compiler.TILDE:
		reg, err := g.genExpr(n.Operand)
		if err != nil {
			return 0, err
		}
		g.line("    NOT r%d", reg)
		return reg, nil

	case compiler.NOT:
		reg, err := g.genExpr(n.Operand)
		if err != nil {
			return 0, err
		}
		g.line("    SEQZ r%d, r%d", reg, reg)
		return reg, nil

	case compiler.AND:
		return g.genAddressOf(n.Operand)

	case compiler.STAR:
		reg, err := g.genExpr(n.Operand)
		if err != nil {
			return 0, err
		}
		g.line("    LD r%d, [r%d]", reg, reg)
		return reg, nil

	case compiler.PLUS_PLUS, compiler.MINUS_MINUS:
		loc, delta := (*varLoc)(nil), 1
		if n.Op == compiler.MINUS_MINUS {
			delta = -1
		}
		if ref, ok := n.Operand.(*compiler.VarRef); ok {
			var err error
			loc, err = g.lookup(ref.Name)
			if err != nil {
				return 0, err
			}
			reg, err := g.loadVar(loc)
			if err != nil {
				return 0, err
			}
			g.line("    ADDI r%d, %d", reg, delta)
			g.storeVar(loc, reg)
			return reg, nil
		}
		return 0, fmt.Errorf("codegen: prefix %s requires a variable operand", n.Op)

	default:
		return 0, fmt.Errorf("codegen: unsupported unary operator %s", n.Op)
	}
}

func (g *Generator) genPostfix(n *compiler.PostfixExpr) (int, error) {
	ref, ok := n.Operand.(*compiler.VarRef)
	if !ok {
		return 0, fmt.Errorf("codegen: postfix %s requires a variable operand", n.Op)
	}
	loc, err := g.lookup(ref.Name)
	if err != nil {
		return 0, err
	}
	old, err := g.loadVar(loc)
	if err != nil {
		return 0, err
	}
	updated, err := g.regs.AllocTemp(g.function)
	if err != nil {
		return 0, err
	}
	g.line("    MOV r%d, r%d", updated, old)
	if n.Op == compiler.PLUS_PLUS {
		g.line("    ADDI r%d, 1", updated)
	} else {
		g.line("    ADDI r%d, -1", updated)
	}
	g.storeVar(loc, updated)
	g.regs.FreeTemp(updated)
	return old, nil
}

// genAddressOf implements &operand: identifiers, array elements and
// &*p (which reduces to p).
func (g *Generator) genAddressOf(operand compiler.Expr) (int, error) {
	switch n := operand.(type) {
	case *compiler.VarRef:
		loc, err := g.lookup(n.Name)
		if err != nil {
			return 0, err
		}
		if !loc.inMemory {
			return 0, fmt.Errorf("codegen: cannot take the address of register-resident variable %q", n.Name)
		}
		reg, err := g.regs.AllocTemp(g.function)
		if err != nil {
			return 0, err
		}
		if loc.isGlobal {
			g.line("    LDI r%d, %s", reg, loc.label)
		} else {
			g.line("    LDI r%d, FP", reg)
			g.line("    ADDI r%d, %d", reg, loc.frameSlot)
		}
		return reg, nil
	case *compiler.IndexExpr:
		return g.genIndexAddress(n)
	case *compiler.UnaryExpr:
		if n.Op == compiler.STAR {
			return g.genExpr(n.Operand)
		}
	}
	return 0, fmt.Errorf("codegen: cannot take the address of this expression")
}

func (g *Generator) genLogical(n *compiler.LogicalExpr) (int, error) {
	left, err := g.genExpr(n.Left)
	if err != nil {
		return 0, err
	}
	shortCircuit := g.newLabel("sc")
	end := g.newLabel("scend")
	result, err := g.regs.AllocTemp(g.function)
	if err != nil {
		return 0, err
	}
	if n.Op == compiler.AND_AND {
		g.line("    MOV r%d, r%d", result, left)
		g.line("    JZ r%d, %s", left, shortCircuit)
	} else {
		g.line("    LDI r%d, 1", result)
		g.line("    JNZ r%d, %s", left, shortCircuit)
	}
	g.regs.FreeTemp(left)
	right, err := g.genExpr(n.Right)
	if err != nil {
		return 0, err
	}
	g.line("    SNEZ r%d, r%d", result, right)
	g.regs.FreeTemp(right)
	g.line("    JMP %s", end)
	g.line("%s:", shortCircuit)
	g.line("    SNEZ r%d, r%d", result, result)
	g.line("%s:", end)
	return result, nil
}

func (g *Generator) genBinary(n *compiler.BinaryExpr) (int, error) {
	left, err := g.genExpr(n.Left)
	if err != nil {
		return 0, err
	}
	right, err := g.genExpr(n.Right)
	if err != nil {
		return 0, err
	}
	signed := g.exprType(n.Left) == compiler.TypeI32 || g.exprType(n.Right) == compiler.TypeI32

	switch n.Op {
	case compiler.PLUS:
		if g.isPointerExpr(n.Left) {
			if err := g.scaleByWordSize(right); err != nil {
				return 0, err
			}
		} else if g.isPointerExpr(n.Right) {
			if err := g.scaleByWordSize(left); err != nil {
				return 0, err
			}
		}
		g.line("    ADD r%d, r%d", left, right)
	case compiler.MINUS:
		if g.isPointerExpr(n.Left) {
			if err := g.scaleByWordSize(right); err != nil {
				return 0, err
			}
		}
		g.line("    SUB r%d, r%d", left, right)
	case compiler.STAR:
		g.line("    MUL r%d, r%d", left, right)
	case compiler.SLASH:
		g.needsDivLib = true
		g.emitDivCall(left, right, signed, false)
	case compiler.PERCENT:
		g.needsDivLib = true
		g.emitDivCall(left, right, signed, true)
	case compiler.AND:
		g.line("    AND r%d, r%d", left, right)
	case compiler.PIPE:
		g.line("    OR r%d, r%d", left, right)
	case compiler.CARET:
		g.line("    XOR r%d, r%d", left, right)
	case compiler.SHL:
		g.line("    ANDI r%d, 0x1F", right)
		g.line("    SHL r%d, r%d", left, right)
	case compiler.SHR:
		g.line("    ANDI r%d, 0x1F", right)
		if signed {
			g.line("    SRA r%d, r%d", left, right)
		} else {
			g.line("    SHR r%d, r%d", left, right)
		}
	case compiler.EQ:
		g.line("    SEQ r%d, r%d, r%d", left, left, right)
	case compiler.NOT_EQ:
		g.line("    SNE r%d, r%d, r%d", left, left, right)
	case compiler.LESS:
		g.emitCompare(left, right, signed, "SLT")
	case compiler.LESS_EQ:
		g.emitCompare(left, right, signed, "SLE")
	case compiler.GREATER:
		g.emitCompare(right, left, signed, "SLT")
		g.line("    MOV r%d, r%d", left, right)
	case compiler.GREAT_EQ:
		g.emitCompare(right, left, signed, "SLE")
		g.line("    MOV r%d, r%d", left, right)
	default:
		return 0, fmt.Errorf("codegen: unsupported binary operator %s", n.Op)
	}
	g.regs.FreeTemp(right)
	return left, nil
}

func (g *Generator) emitCompare(dst, other int, signed bool, op string) {
	suffix := "U"
	if signed {
		suffix = "S"
	}
	g.line("    %s%s r%d, r%d, r%d", op, suffix, dst, dst, other)
}

// emitDivCall lowers / and % to a call into the shared runtime division
// helper, passing left/right in r26/r27 and taking the result from r0. A
// call keeps the generated code the same size regardless of how many
// divisions a program contains, rather than inlining a restoring-division
// loop at every site.
func (g *Generator) emitDivCall(left, right int, signed, modulo bool) {
	g.line("    PUSH r26")
	g.line("    PUSH r27")
	g.line("    MOV r26, r%d", left)
	g.line("    MOV r27, r%d", right)
	name := "__udiv32"
	if signed {
		name = "__sdiv32"
	}
	if modulo {
		name += "_rem"
	}
	g.line("    CALL %s", name)
	g.line("    MOV r%d, r0", left)
	g.line("    POP r27")
	g.line("    POP r26")
}

func (g *Generator) genCall(n *compiler.FunctionCall) (int, error) {
	if spec, ok := lowerableIntrinsics[n.Name]; ok {
		return g.genIntrinsicCall(n, spec)
	}
	if _, hardware := hardwareIntrinsicNames[n.Name]; hardware {
		return 0, fmt.Errorf("codegen: hardware function %q has no direct ISA lowering", n.Name)
	}

	argRegs := make([]int, 0, len(n.Args))
	for _, a := range n.Args {
		reg, err := g.genExpr(a)
		if err != nil {
			return 0, err
		}
		argRegs = append(argRegs, reg)
	}
	for i, reg := range argRegs {
		if i < 5 {
			g.line("    MOV r%d, r%d", argLo+i, reg)
		} else {
			g.line("    PUSH r%d", reg)
		}
		g.regs.FreeTemp(reg)
	}
	g.line("    CALL %s", n.Name)
	if len(argRegs) > 5 {
		g.line("    ADDSP %d", (len(argRegs)-5)*4)
	}
	result, err := g.regs.AllocTemp(g.function)
	if err != nil {
		return 0, err
	}
	g.line("    MOV r%d, r0", result)
	return result, nil
}

func (g *Generator) emitDivisionLibrary() {
	g.line("")
	g.line("; software division/modulo helper, args r26/r27, result r0")
	g.line("__udiv32:")
	g.line("    DIVU r0, r26, r27")
	g.line("    RET")
	g.line("__udiv32_rem:")
	g.line("    REMU r0, r26, r27")
	g.line("    RET")
	g.line("__sdiv32:")
	g.line("    DIVS r0, r26, r27")
	g.line("    RET")
	g.line("__sdiv32_rem:")
	g.line("    REMS r0, r26, r27")
	g.line("    RET")
}
