package interp

import "regvm/pkg/compiler"

// eval evaluates e and returns its value together with the type used to
// decide signedness for any enclosing operation.
func (in *Interpreter) eval(e compiler.Expr, env *Environment) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	switch t := e.(type) {
	case *compiler.Literal:
		return t.Value, compiler.TypeU32, nil

	case *compiler.VarRef:
		cell, ok := env.Lookup(t.Name)
		if !ok {
			return 0, 0, newRuntimeErr(t.Pos, "undeclared identifier %q", t.Name)
		}
		if cell.IsArray {
			return cell.Addr, cell.Type, nil
		}
		if cell.IsRegister {
			return in.registers[cell.RegisterNo], cell.Type, nil
		}
		v, err := in.mem.LoadWord(cell.Addr)
		if err != nil {
			return 0, 0, newRuntimeErr(t.Pos, "%v", err)
		}
		return v, cell.Type, nil

	case *compiler.BinaryExpr:
		return in.evalBinary(t, env)

	case *compiler.LogicalExpr:
		lv, _, diag := in.eval(t.Left, env)
		if diag != nil {
			return 0, 0, diag
		}
		switch t.Op {
		case compiler.AND_AND:
			if lv == 0 {
				return 0, compiler.TypeU32, nil
			}
			rv, _, diag := in.eval(t.Right, env)
			if diag != nil {
				return 0, 0, diag
			}
			return boolToWord(rv != 0), compiler.TypeU32, nil
		case compiler.OR_OR:
			if lv != 0 {
				return 1, compiler.TypeU32, nil
			}
			rv, _, diag := in.eval(t.Right, env)
			if diag != nil {
				return 0, 0, diag
			}
			return boolToWord(rv != 0), compiler.TypeU32, nil
		default:
			return 0, 0, newRuntimeErr(t.Pos, "unsupported logical operator %s", t.Op)
		}

	case *compiler.UnaryExpr:
		return in.evalUnary(t, env)

	case *compiler.PostfixExpr:
		write, read, typ, diag := in.resolveTarget(t.Operand, env)
		if diag != nil {
			return 0, 0, diag
		}
		old, err := read()
		if err != nil {
			return 0, 0, newRuntimeErr(t.Pos, "%v", err)
		}
		var next uint32
		if t.Op == compiler.PLUS_PLUS {
			next = old + 1
		} else {
			next = old - 1
		}
		if err := write(next); err != nil {
			return 0, 0, newRuntimeErr(t.Pos, "%v", err)
		}
		return old, typ, nil

	case *compiler.FunctionCall:
		return in.evalCall(t, env)

	case *compiler.IndexExpr:
		addr, elemType, diag := in.indexAddress(t, env)
		if diag != nil {
			return 0, 0, diag
		}
		v, err := in.mem.LoadWord(addr)
		if err != nil {
			return 0, 0, newRuntimeErr(t.Pos, "%v", err)
		}
		return v, elemType, nil

	default:
		return 0, 0, newRuntimeErr(e.Position(), "unsupported expression %T", e)
	}
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// baseAddress resolves e to the address of the first element of the array
// or pointer it names, used by IndexExpr.
func (in *Interpreter) baseAddress(e compiler.Expr, env *Environment) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	if ref, ok := e.(*compiler.VarRef); ok {
		cell, found := env.Lookup(ref.Name)
		if !found {
			return 0, 0, newRuntimeErr(ref.Pos, "undeclared identifier %q", ref.Name)
		}
		if cell.IsArray {
			return cell.Addr, cell.Type, nil
		}
	}
	// Otherwise e is a pointer-valued expression; its value is the base address.
	return in.eval(e, env)
}

func (in *Interpreter) indexAddress(idx *compiler.IndexExpr, env *Environment) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	base, elemType, diag := in.baseAddress(idx.Base, env)
	if diag != nil {
		return 0, 0, diag
	}
	i, _, diag := in.eval(idx.Index, env)
	if diag != nil {
		return 0, 0, diag
	}
	return base + i*4, elemType, nil
}

// resolveTarget produces read/write closures for an lvalue expression,
// covering plain variables, array elements and pointer dereferences.
func (in *Interpreter) resolveTarget(e compiler.Expr, env *Environment) (write func(uint32) error, read func() (uint32, error), typ compiler.TypeName, diag *compiler.Diagnostic) {
	switch t := e.(type) {
	case *compiler.VarRef:
		cell, ok := env.Lookup(t.Name)
		if !ok {
			return nil, nil, 0, newRuntimeErr(t.Pos, "undeclared identifier %q", t.Name)
		}
		if cell.IsRegister {
			regNo := cell.RegisterNo
			return func(v uint32) error { in.registers[regNo] = v; return nil },
				func() (uint32, error) { return in.registers[regNo], nil },
				cell.Type, nil
		}
		addr := cell.Addr
		return func(v uint32) error { return in.mem.StoreWord(addr, v) },
			func() (uint32, error) { return in.mem.LoadWord(addr) },
			cell.Type, nil

	case *compiler.IndexExpr:
		addr, elemType, diag := in.indexAddress(t, env)
		if diag != nil {
			return nil, nil, 0, diag
		}
		return func(v uint32) error { return in.mem.StoreWord(addr, v) },
			func() (uint32, error) { return in.mem.LoadWord(addr) },
			elemType, nil

	case *compiler.UnaryExpr:
		if t.Op != compiler.STAR {
			return nil, nil, 0, newRuntimeErr(t.Pos, "expression is not assignable")
		}
		addr, typ, diag := in.eval(t.Operand, env)
		if diag != nil {
			return nil, nil, 0, diag
		}
		return func(v uint32) error { return in.mem.StoreWord(addr, v) },
			func() (uint32, error) { return in.mem.LoadWord(addr) },
			typ, nil

	default:
		return nil, nil, 0, newRuntimeErr(e.Position(), "expression is not assignable")
	}
}

func (in *Interpreter) evalUnary(u *compiler.UnaryExpr, env *Environment) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	switch u.Op {
	case compiler.MINUS:
		v, typ, diag := in.eval(u.Operand, env)
		if diag != nil {
			return 0, 0, diag
		}
		return uint32(-int32(v)), typ, nil

	case compiler.TILDE:
		v, typ, diag := in.eval(u.Operand, env)
		if diag != nil {
			return 0, 0, diag
		}
		return ^v, typ, nil

	case compiler.NOT:
		v, _, diag := in.eval(u.Operand, env)
		if diag != nil {
			return 0, 0, diag
		}
		return boolToWord(v == 0), compiler.TypeU32, nil

	case compiler.AND:
		return in.evalAddressOf(u.Operand, env)

	case compiler.STAR:
		addr, typ, diag := in.eval(u.Operand, env)
		if diag != nil {
			return 0, 0, diag
		}
		v, err := in.mem.LoadWord(addr)
		if err != nil {
			return 0, 0, newRuntimeErr(u.Pos, "%v", err)
		}
		return v, typ, nil

	case compiler.PLUS_PLUS, compiler.MINUS_MINUS:
		write, read, typ, diag := in.resolveTarget(u.Operand, env)
		if diag != nil {
			return 0, 0, diag
		}
		cur, err := read()
		if err != nil {
			return 0, 0, newRuntimeErr(u.Pos, "%v", err)
		}
		var next uint32
		if u.Op == compiler.PLUS_PLUS {
			next = cur + 1
		} else {
			next = cur - 1
		}
		if err := write(next); err != nil {
			return 0, 0, newRuntimeErr(u.Pos, "%v", err)
		}
		return next, typ, nil

	default:
		return 0, 0, newRuntimeErr(u.Pos, "unsupported unary operator %s", u.Op)
	}
}

// evalAddressOf implements &operand for identifiers, array elements and
// dereferences (&*p reduces to p).
func (in *Interpreter) evalAddressOf(operand compiler.Expr, env *Environment) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	switch t := operand.(type) {
	case *compiler.VarRef:
		cell, ok := env.Lookup(t.Name)
		if !ok {
			return 0, 0, newRuntimeErr(t.Pos, "undeclared identifier %q", t.Name)
		}
		if cell.IsRegister {
			return 0, 0, newRuntimeErr(t.Pos, "cannot take the address of register variable %q", t.Name)
		}
		return cell.Addr, cell.Type, nil
	case *compiler.IndexExpr:
		addr, elemType, diag := in.indexAddress(t, env)
		return addr, elemType, diag
	case *compiler.UnaryExpr:
		if t.Op == compiler.STAR {
			return in.eval(t.Operand, env)
		}
	}
	return 0, 0, newRuntimeErr(operand.Position(), "cannot take the address of this expression")
}

// isPointerExpr reports whether e is a reference to a pointer-typed
// variable, so that '+'/'-' against it scales the other operand by the
// pointee size (4 bytes) instead of adding raw integers.
func (in *Interpreter) isPointerExpr(e compiler.Expr, env *Environment) bool {
	ref, ok := e.(*compiler.VarRef)
	if !ok {
		return false
	}
	cell, ok := env.Lookup(ref.Name)
	return ok && cell.IsPointer
}

func (in *Interpreter) evalBinary(b *compiler.BinaryExpr, env *Environment) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	lv, lt, diag := in.eval(b.Left, env)
	if diag != nil {
		return 0, 0, diag
	}
	rv, rt, diag := in.eval(b.Right, env)
	if diag != nil {
		return 0, 0, diag
	}
	// If either operand is int32, the operation is carried out signed.
	signed := lt == compiler.TypeI32 || rt == compiler.TypeI32
	resultType := compiler.TypeU32
	if signed {
		resultType = compiler.TypeI32
	}

	switch b.Op {
	case compiler.PLUS:
		if in.isPointerExpr(b.Left, env) {
			return lv + rv*4, resultType, nil
		}
		if in.isPointerExpr(b.Right, env) {
			return lv*4 + rv, resultType, nil
		}
		return lv + rv, resultType, nil
	case compiler.MINUS:
		if in.isPointerExpr(b.Left, env) {
			return lv - rv*4, resultType, nil
		}
		return lv - rv, resultType, nil
	case compiler.STAR:
		return lv * rv, resultType, nil
	case compiler.SLASH:
		if rv == 0 {
			return 0, 0, newRuntimeErr(b.Pos, "division by zero")
		}
		if signed {
			return uint32(int32(lv) / int32(rv)), resultType, nil
		}
		return lv / rv, resultType, nil
	case compiler.PERCENT:
		if rv == 0 {
			return 0, 0, newRuntimeErr(b.Pos, "modulo by zero")
		}
		if signed {
			return uint32(int32(lv) % int32(rv)), resultType, nil
		}
		return lv % rv, resultType, nil
	case compiler.AND:
		return lv & rv, resultType, nil
	case compiler.PIPE:
		return lv | rv, resultType, nil
	case compiler.CARET:
		return lv ^ rv, resultType, nil
	case compiler.SHL:
		return lv << (rv & 0x1F), resultType, nil
	case compiler.SHR:
		amt := rv & 0x1F
		if signed {
			return uint32(int32(lv) >> amt), resultType, nil
		}
		return lv >> amt, resultType, nil
	case compiler.EQ:
		return boolToWord(lv == rv), compiler.TypeU32, nil
	case compiler.NOT_EQ:
		return boolToWord(lv != rv), compiler.TypeU32, nil
	case compiler.LESS:
		if signed {
			return boolToWord(int32(lv) < int32(rv)), compiler.TypeU32, nil
		}
		return boolToWord(lv < rv), compiler.TypeU32, nil
	case compiler.LESS_EQ:
		if signed {
			return boolToWord(int32(lv) <= int32(rv)), compiler.TypeU32, nil
		}
		return boolToWord(lv <= rv), compiler.TypeU32, nil
	case compiler.GREATER:
		if signed {
			return boolToWord(int32(lv) > int32(rv)), compiler.TypeU32, nil
		}
		return boolToWord(lv > rv), compiler.TypeU32, nil
	case compiler.GREAT_EQ:
		if signed {
			return boolToWord(int32(lv) >= int32(rv)), compiler.TypeU32, nil
		}
		return boolToWord(lv >= rv), compiler.TypeU32, nil
	default:
		return 0, 0, newRuntimeErr(b.Pos, "unsupported binary operator %s", b.Op)
	}
}

func (in *Interpreter) evalCall(c *compiler.FunctionCall, env *Environment) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	if spec, ok := intrinsics[c.Name]; ok {
		if len(c.Args) != spec.arity {
			return 0, 0, newRuntimeErr(c.Pos, "%s expects %d argument(s), got %d", c.Name, spec.arity, len(c.Args))
		}
		args := make([]uint32, len(c.Args))
		for i, a := range c.Args {
			v, _, diag := in.eval(a, env)
			if diag != nil {
				return 0, 0, diag
			}
			args[i] = v
		}
		v, err := spec.handler(in, args)
		if err != nil {
			return 0, 0, newRuntimeErr(c.Pos, "%v", err)
		}
		return v, compiler.TypeU32, nil
	}

	fn, ok := in.functions[c.Name]
	if !ok {
		return 0, 0, newRuntimeErr(c.Pos, "call to undefined function %q", c.Name)
	}
	args := make([]uint32, len(c.Args))
	for i, a := range c.Args {
		v, _, diag := in.eval(a, env)
		if diag != nil {
			return 0, 0, diag
		}
		args[i] = v
	}
	return in.callFunction(fn, args)
}

// evalAssignment executes Target Op Value and returns the value stored.
func (in *Interpreter) evalAssignment(a *compiler.Assignment, env *Environment) (uint32, compiler.TypeName, *compiler.Diagnostic) {
	write, read, typ, diag := in.resolveTarget(a.Target, env)
	if diag != nil {
		return 0, 0, diag
	}
	if a.Op == compiler.ASSIGN {
		v, _, diag := in.eval(a.Value, env)
		if diag != nil {
			return 0, 0, diag
		}
		if err := write(v); err != nil {
			return 0, 0, newRuntimeErr(a.Pos, "%v", err)
		}
		return v, typ, nil
	}

	cur, err := read()
	if err != nil {
		return 0, 0, newRuntimeErr(a.Pos, "%v", err)
	}
	rhs, rt, diag := in.eval(a.Value, env)
	if diag != nil {
		return 0, 0, diag
	}
	signed := typ == compiler.TypeI32 || rt == compiler.TypeI32
	targetIsPointer := in.isPointerExpr(a.Target, env)

	var v uint32
	switch a.Op {
	case compiler.PLUS_ASSIGN:
		if targetIsPointer {
			v = cur + rhs*4
		} else {
			v = cur + rhs
		}
	case compiler.MINUS_ASSIGN:
		if targetIsPointer {
			v = cur - rhs*4
		} else {
			v = cur - rhs
		}
	case compiler.STAR_ASSIGN:
		v = cur * rhs
	case compiler.SLASH_ASSIGN:
		if rhs == 0 {
			return 0, 0, newRuntimeErr(a.Pos, "division by zero")
		}
		if signed {
			v = uint32(int32(cur) / int32(rhs))
		} else {
			v = cur / rhs
		}
	default:
		return 0, 0, newRuntimeErr(a.Pos, "unsupported compound assignment operator %s", a.Op)
	}
	if err := write(v); err != nil {
		return 0, 0, newRuntimeErr(a.Pos, "%v", err)
	}
	return v, typ, nil
}
