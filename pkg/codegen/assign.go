package codegen

import (
	"fmt"

	"regvm/pkg/compiler"
)

// genAssignment lowers Target Op Value for every lvalue shape the parser
// accepts: a plain variable, an array element, or a pointer dereference.
func (g *Generator) genAssignment(a *compiler.Assignment) error {
	switch target := a.Target.(type) {
	case *compiler.VarRef:
		loc, err := g.lookup(target.Name)
		if err != nil {
			return err
		}
		return g.assignToVar(loc, a)

	case *compiler.IndexExpr:
		addr, err := g.genIndexAddress(target)
		if err != nil {
			return err
		}
		value, err := g.genExpr(a.Value)
		if err != nil {
			return err
		}
		if a.Op != compiler.ASSIGN {
			cur, err := g.regs.AllocTemp(g.function)
			if err != nil {
				return err
			}
			g.line("    LD r%d, [r%d]", cur, addr)
			if err := g.applyCompound(a.Op, cur, value, g.exprType(target), false); err != nil {
				return err
			}
			g.line("    ST [r%d], r%d", addr, cur)
			g.regs.FreeTemp(cur)
		} else {
			g.line("    ST [r%d], r%d", addr, value)
		}
		g.regs.FreeTemp(value)
		g.regs.FreeTemp(addr)
		return nil

	case *compiler.UnaryExpr:
		if target.Op != compiler.STAR {
			return fmt.Errorf("codegen: cannot assign to this expression")
		}
		addr, err := g.genExpr(target.Operand)
		if err != nil {
			return err
		}
		value, err := g.genExpr(a.Value)
		if err != nil {
			return err
		}
		if a.Op != compiler.ASSIGN {
			cur, err := g.regs.AllocTemp(g.function)
			if err != nil {
				return err
			}
			g.line("    LD r%d, [r%d]", cur, addr)
			if err := g.applyCompound(a.Op, cur, value, g.exprType(target.Operand), false); err != nil {
				return err
			}
			g.line("    ST [r%d], r%d", addr, cur)
			g.regs.FreeTemp(cur)
		} else {
			g.line("    ST [r%d], r%d", addr, value)
		}
		g.regs.FreeTemp(value)
		g.regs.FreeTemp(addr)
		return nil

	default:
		return fmt.Errorf("codegen: cannot assign to expression %T", a.Target)
	}
}

func (g *Generator) assignToVar(loc *varLoc, a *compiler.Assignment) error {
	if a.Op == compiler.ASSIGN {
		value, err := g.genExpr(a.Value)
		if err != nil {
			return err
		}
		g.storeVar(loc, value)
		g.regs.FreeTemp(value)
		return nil
	}
	cur, err := g.loadVar(loc)
	if err != nil {
		return err
	}
	value, err := g.genExpr(a.Value)
	if err != nil {
		return err
	}
	if err := g.applyCompound(a.Op, cur, value, loc.typ, loc.isPointer); err != nil {
		return err
	}
	g.storeVar(loc, cur)
	g.regs.FreeTemp(value)
	g.regs.FreeTemp(cur)
	return nil
}

// applyCompound emits dst = dst OP src for a compound-assignment operator,
// applying the signed/unsigned rule to division exactly as ordinary binary
// expressions do. When dst names a pointer, += and -= scale src by the
// pointee size the same way the binary + and - operators do.
func (g *Generator) applyCompound(op compiler.TokenType, dst, src int, dstType compiler.TypeName, isPointer bool) error {
	switch op {
	case compiler.PLUS_ASSIGN:
		if isPointer {
			if err := g.scaleByWordSize(src); err != nil {
				return err
			}
		}
		g.line("    ADD r%d, r%d", dst, src)
	case compiler.MINUS_ASSIGN:
		if isPointer {
			if err := g.scaleByWordSize(src); err != nil {
				return err
			}
		}
		g.line("    SUB r%d, r%d", dst, src)
	case compiler.STAR_ASSIGN:
		g.line("    MUL r%d, r%d", dst, src)
	case compiler.SLASH_ASSIGN:
		g.needsDivLib = true
		g.emitDivCall(dst, src, dstType == compiler.TypeI32, false)
	}
	return nil
}
