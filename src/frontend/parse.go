// Package frontend reads the textual form of the linear IR and builds the IR
// module the backend compiles. The reader is line oriented: one instruction,
// declaration or label per line, with ; and # starting comments.
package frontend

import (
	"fmt"
	"strconv"
	"strings"

	"mcc/src/ir"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// parser holds the state of one parse: the module under construction and the
// scope of the function currently open.
type parser struct {
	m    *ir.Module
	fn   *ir.Function
	vals map[string]ir.Value          // Named values of the open function.
	labs map[string]*ir.Instruction   // Labels of the open function.
	defd map[string]bool              // Labels that have been placed.
	line int
}

// ---------------------
// ----- Constants -----
// ---------------------

// binops maps source mnemonics to IR operators and their result types.
var binops = map[string]struct {
	op  ir.IROp
	typ ir.Type
}{
	"add":  {ir.OpIAdd, ir.TypeInt},
	"sub":  {ir.OpISub, ir.TypeInt},
	"mul":  {ir.OpIMul, ir.TypeInt},
	"div":  {ir.OpIDiv, ir.TypeInt},
	"mod":  {ir.OpIMod, ir.TypeInt},
	"eq":   {ir.OpIEq, ir.TypeBool},
	"ne":   {ir.OpINe, ir.TypeBool},
	"gt":   {ir.OpIGt, ir.TypeBool},
	"le":   {ir.OpILe, ir.TypeBool},
	"ge":   {ir.OpIGe, ir.TypeBool},
	"lt":   {ir.OpILt, ir.TypeBool},
	"xor":  {ir.OpXor, ir.TypeInt},
	"fadd": {ir.OpFAdd, ir.TypeFloat},
	"fsub": {ir.OpFSub, ir.TypeFloat},
	"fmul": {ir.OpFMul, ir.TypeFloat},
	"fdiv": {ir.OpFDiv, ir.TypeFloat},
	"fmod": {ir.OpFMod, ir.TypeFloat},
	"feq":  {ir.OpFEq, ir.TypeBool},
	"fne":  {ir.OpFNe, ir.TypeBool},
	"fgt":  {ir.OpFGt, ir.TypeBool},
	"fge":  {ir.OpFGe, ir.TypeBool},
	"flt":  {ir.OpFLt, ir.TypeBool},
	"fle":  {ir.OpFLe, ir.TypeBool},
}

// castKinds maps source mnemonics to cast conversions and their result types.
var castKinds = map[string]struct {
	kind ir.CastKind
	typ  ir.Type
}{
	"inttofloat": {ir.CastIntToFloat, ir.TypeFloat},
	"floattoint": {ir.CastFloatToInt, ir.TypeInt},
	"booltoint":  {ir.CastBoolToInt, ir.TypeInt},
	"inttobool":  {ir.CastIntToBool, ir.TypeBool},
}

// ---------------------
// ----- functions -----
// ---------------------

// Parse reads linear IR source text and returns the IR module it describes.
func Parse(src string) (*ir.Module, error) {
	p := parser{m: ir.CreateModule("")}
	for i1, e1 := range strings.Split(src, "\n") {
		p.line = i1 + 1
		if err := p.parseLine(e1); err != nil {
			return nil, err
		}
	}
	if p.fn != nil {
		return nil, p.errf("function %s is missing its closing brace", p.fn.Name())
	}
	return p.m, nil
}

// errf returns an error prefixed with the current line number.
func (p *parser) errf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", p.line, fmt.Sprintf(format, args...))
}

// tokens splits a source line into tokens, treating punctuation as separate
// tokens and stripping comments.
func tokens(line string) []string {
	if i1 := strings.IndexAny(line, ";#"); i1 != -1 {
		line = line[:i1]
	}
	for _, c := range []string{",", "(", ")", "[", "]", "{", "}", "="} {
		line = strings.ReplaceAll(line, c, " "+c+" ")
	}
	return strings.Fields(line)
}

// parseLine dispatches a single source line.
func (p *parser) parseLine(line string) error {
	toks := tokens(line)
	if len(toks) == 0 {
		return nil
	}

	switch toks[0] {
	case "global":
		return p.parseGlobal(toks)
	case "extern":
		return p.parseExtern(toks)
	case "func":
		return p.parseFunc(toks)
	case "}":
		return p.parseEnd(toks)
	}

	if p.fn == nil {
		return p.errf("instruction outside function: %s", toks[0])
	}

	switch toks[0] {
	case "var":
		return p.parseVar(toks)
	case "label":
		return p.parseLabel(toks)
	case "goto":
		return p.parseGoto(toks)
	case "br":
		return p.parseBr(toks)
	case "ret":
		return p.parseRet(toks)
	case "store":
		return p.parseStore(toks)
	case "call":
		_, err := p.parseCall(toks, 0)
		return err
	}

	// Remaining forms assign to a destination: dst = ...
	if len(toks) >= 3 && toks[1] == "=" {
		return p.parseAssign(toks)
	}
	return p.errf("unexpected instruction: %s", toks[0])
}

// parseType parses a type starting at toks[pos] and returns it together with
// the position of the first unconsumed token.
func (p *parser) parseType(toks []string, pos int) (ir.Type, int, error) {
	if pos >= len(toks) {
		return nil, pos, p.errf("expected type")
	}
	switch toks[pos] {
	case "i32":
		return ir.TypeInt, pos + 1, nil
	case "i1":
		return ir.TypeBool, pos + 1, nil
	case "float":
		return ir.TypeFloat, pos + 1, nil
	case "void":
		return ir.TypeVoid, pos + 1, nil
	case "[":
		// [N x T]
		if pos+2 >= len(toks) || toks[pos+2] != "x" {
			return nil, pos, p.errf("malformed array type")
		}
		n, err := strconv.Atoi(toks[pos+1])
		if err != nil || n < 1 {
			return nil, pos, p.errf("malformed array length: %s", toks[pos+1])
		}
		elem, next, err := p.parseType(toks, pos+3)
		if err != nil {
			return nil, pos, err
		}
		if next >= len(toks) || toks[next] != "]" {
			return nil, pos, p.errf("array type is missing its closing bracket")
		}
		return ir.GetArrayType(elem, uint32(n)), next + 1, nil
	}
	return nil, pos, p.errf("unknown type: %s", toks[pos])
}

// parseGlobal parses: global <name> <type> <value>|bss
func (p *parser) parseGlobal(toks []string) error {
	if len(toks) < 4 {
		return p.errf("malformed global declaration")
	}
	name := toks[1]
	typ, next, err := p.parseType(toks, 2)
	if err != nil {
		return err
	}
	if next >= len(toks) {
		return p.errf("global %s is missing its initial value", name)
	}
	if toks[next] == "bss" {
		p.m.CreateGlobalVariable(name, typ, 0, true)
		return nil
	}
	v, err := strconv.ParseInt(toks[next], 10, 32)
	if err != nil {
		return p.errf("malformed initial value for global %s: %s", name, toks[next])
	}
	p.m.CreateGlobalVariable(name, typ, int32(v), false)
	return nil
}

// parseExtern parses: extern <name> ( <types> ) <rettype>
func (p *parser) parseExtern(toks []string) error {
	if len(toks) < 4 || toks[2] != "(" {
		return p.errf("malformed extern declaration")
	}
	name := toks[1]
	ptypes := make([]ir.Type, 0, 8)
	pos := 3
	for pos < len(toks) && toks[pos] != ")" {
		if toks[pos] == "," {
			pos++
			continue
		}
		typ, next, err := p.parseType(toks, pos)
		if err != nil {
			return err
		}
		ptypes = append(ptypes, typ)
		pos = next
	}
	if pos >= len(toks) {
		return p.errf("extern %s is missing its closing parenthesis", name)
	}
	rtyp, _, err := p.parseType(toks, pos+1)
	if err != nil {
		return err
	}
	p.m.CreateBuiltin(name, rtyp, ptypes...)
	return nil
}

// parseFunc parses: func <name> ( <pname> <ptype>, ... ) <rettype> {
func (p *parser) parseFunc(toks []string) error {
	if p.fn != nil {
		return p.errf("function %s is not closed", p.fn.Name())
	}
	if len(toks) < 5 || toks[2] != "(" {
		return p.errf("malformed function header")
	}
	name := toks[1]

	type paramSpec struct {
		name string
		typ  ir.Type
	}
	params := make([]paramSpec, 0, 8)
	pos := 3
	for pos < len(toks) && toks[pos] != ")" {
		if toks[pos] == "," {
			pos++
			continue
		}
		pname := toks[pos]
		typ, next, err := p.parseType(toks, pos+1)
		if err != nil {
			return err
		}
		params = append(params, paramSpec{name: pname, typ: typ})
		pos = next
	}
	if pos >= len(toks) {
		return p.errf("function %s is missing its closing parenthesis", name)
	}
	rtyp, next, err := p.parseType(toks, pos+1)
	if err != nil {
		return err
	}
	if next >= len(toks) || toks[next] != "{" {
		return p.errf("function %s is missing its opening brace", name)
	}

	p.fn = p.m.CreateFunction(name, rtyp)
	p.vals = make(map[string]ir.Value, 16)
	p.labs = make(map[string]*ir.Instruction, 8)
	p.defd = make(map[string]bool, 8)
	for _, e1 := range params {
		p.vals[e1.name] = p.fn.AddParam(e1.name, e1.typ)
	}
	return nil
}

// parseEnd closes the open function.
func (p *parser) parseEnd(toks []string) error {
	if p.fn == nil {
		return p.errf("unmatched closing brace")
	}
	for name := range p.labs {
		if !p.defd[name] {
			return p.errf("label %s is referenced but never placed", name)
		}
	}
	p.fn.Finish()
	p.fn = nil
	p.vals = nil
	p.labs = nil
	p.defd = nil
	return nil
}

// parseVar parses: var <name> <type>
func (p *parser) parseVar(toks []string) error {
	if len(toks) < 3 {
		return p.errf("malformed variable declaration")
	}
	name := toks[1]
	if _, ok := p.vals[name]; ok {
		return p.errf("duplicate declaration of %s", name)
	}
	typ, _, err := p.parseType(toks, 2)
	if err != nil {
		return err
	}
	p.vals[name] = p.fn.NewLocalVar("%"+name, typ)
	return nil
}

// labelRef returns the label instruction for name, creating it detached when
// first referenced.
func (p *parser) labelRef(name string) *ir.Instruction {
	if l, ok := p.labs[name]; ok {
		return l
	}
	l := p.fn.NewLabel()
	p.labs[name] = l
	return l
}

// parseLabel parses: label <name>
func (p *parser) parseLabel(toks []string) error {
	if len(toks) != 2 {
		return p.errf("malformed label")
	}
	name := toks[1]
	if p.defd[name] {
		return p.errf("duplicate label %s", name)
	}
	p.fn.Append(p.labelRef(name))
	p.defd[name] = true
	return nil
}

// parseGoto parses: goto <label>
func (p *parser) parseGoto(toks []string) error {
	if len(toks) != 2 {
		return p.errf("malformed goto")
	}
	p.fn.CreateGoto(p.labelRef(toks[1]))
	return nil
}

// parseBr parses: br <cond>, <iftrue>, <iffalse>
func (p *parser) parseBr(toks []string) error {
	ops := operands(toks[1:])
	if len(ops) != 3 {
		return p.errf("branch expects a condition and two labels")
	}
	cond, err := p.operand(ops[0])
	if err != nil {
		return err
	}
	p.fn.CreateCondGoto(cond, p.labelRef(ops[1]), p.labelRef(ops[2]))
	return nil
}

// parseRet parses: ret [<value>]
func (p *parser) parseRet(toks []string) error {
	if len(toks) > 1 {
		if p.fn.RetVal() == nil {
			return p.errf("void function %s cannot return a value", p.fn.Name())
		}
		v, err := p.operand(toks[1])
		if err != nil {
			return err
		}
		p.fn.CreateMove(p.fn.RetVal(), v)
	}
	p.fn.CreateGoto(p.fn.ExitLabel())
	return nil
}

// parseStore parses: store <ptr>, <value>
func (p *parser) parseStore(toks []string) error {
	ops := operands(toks[1:])
	if len(ops) != 2 {
		return p.errf("store expects a pointer and a value")
	}
	ptr, err := p.operand(ops[0])
	if err != nil {
		return err
	}
	val, err := p.operand(ops[1])
	if err != nil {
		return err
	}
	p.fn.CreateStore(ptr, val)
	return nil
}

// parseCall parses a call starting at toks[at]: call <name> ( <args> ).
func (p *parser) parseCall(toks []string, at int) (*ir.Instruction, error) {
	if len(toks) < at+3 || toks[at+2] != "(" {
		return nil, p.errf("malformed call")
	}
	callee := p.m.GetFunction(toks[at+1])
	if callee == nil {
		return nil, p.errf("call to undeclared function %s", toks[at+1])
	}
	args := make([]ir.Value, 0, 8)
	for _, e1 := range operands(toks[at+3:]) {
		if e1 == ")" {
			break
		}
		v, err := p.operand(e1)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return p.fn.CreateCall(callee, args), nil
}

// gepLevel returns the array type of the level Value base indexes into.
func (p *parser) gepLevel(base ir.Value) (*ir.ArrayType, error) {
	if inst, ok := base.(*ir.Instruction); ok && inst.Op() == ir.OpGep {
		at := inst.Type().(*ir.ArrayType)
		if elem, ok := at.ElementType().(*ir.ArrayType); ok {
			return elem, nil
		}
		return nil, p.errf("%s indexes through too many dimensions", base.Name())
	}
	if at, ok := base.Type().(*ir.ArrayType); ok {
		return at, nil
	}
	return nil, p.errf("%s is not array typed", base.Name())
}

// parseAssign parses the destination carrying forms: binary operations, calls,
// element address computation, loads, casts and plain moves.
func (p *parser) parseAssign(toks []string) error {
	dst := toks[0]
	rhs := toks[2:]

	var res ir.Value
	switch {
	case len(rhs) >= 1 && rhs[0] == "call":
		inst, err := p.parseCall(toks, 2)
		if err != nil {
			return err
		}
		if !inst.HasResultValue() {
			return p.errf("call to void function %s cannot produce a value", inst.Callee().Name())
		}
		res = inst
	case len(rhs) >= 1 && rhs[0] == "gep":
		ops := operands(rhs[1:])
		if len(ops) != 2 {
			return p.errf("gep expects a base and a subscript")
		}
		base, err := p.operand(ops[0])
		if err != nil {
			return err
		}
		idx, err := p.operand(ops[1])
		if err != nil {
			return err
		}
		level, err := p.gepLevel(base)
		if err != nil {
			return err
		}
		res = p.fn.CreateGep(base, idx, level)
	case len(rhs) >= 1 && rhs[0] == "load":
		if len(rhs) != 2 {
			return p.errf("load expects a pointer")
		}
		ptr, err := p.operand(rhs[1])
		if err != nil {
			return err
		}
		typ := ptr.Type()
		if at, ok := typ.(*ir.ArrayType); ok {
			typ = at.ElementType()
		}
		res = p.fn.CreateLoad(ptr, typ)
	case len(rhs) >= 1 && rhs[0] == "cast":
		if len(rhs) != 3 {
			return p.errf("cast expects a conversion and a source")
		}
		ck, ok := castKinds[rhs[1]]
		if !ok {
			return p.errf("unknown conversion: %s", rhs[1])
		}
		src, err := p.operand(rhs[2])
		if err != nil {
			return err
		}
		res = p.fn.CreateCast(ck.kind, src, ck.typ)
	default:
		if bo, ok := binops[rhs[0]]; ok {
			ops := operands(rhs[1:])
			if len(ops) != 2 {
				return p.errf("%s expects two operands", rhs[0])
			}
			a, err := p.operand(ops[0])
			if err != nil {
				return err
			}
			b, err := p.operand(ops[1])
			if err != nil {
				return err
			}
			res = p.fn.CreateBinary(bo.op, a, b, bo.typ)
		} else {
			// Plain move into a declared variable or global.
			if len(rhs) != 1 {
				return p.errf("unexpected instruction: %s", rhs[0])
			}
			src, err := p.operand(rhs[0])
			if err != nil {
				return err
			}
			d := p.destination(dst)
			if d == nil {
				return p.errf("assignment to undeclared variable %s", dst)
			}
			p.fn.CreateMove(d, src)
			return nil
		}
	}

	// A destination that names a declared variable or global receives the
	// result through a move; a fresh name binds the result value directly.
	if d := p.destination(dst); d != nil {
		p.fn.CreateMove(d, res)
		return nil
	}
	if _, ok := p.vals[dst]; ok {
		return p.errf("duplicate definition of %s", dst)
	}
	p.vals[dst] = res
	return nil
}

// destination resolves name to a storable value: a declared variable, a formal
// parameter or a global. Temporaries are not storable.
func (p *parser) destination(name string) ir.Value {
	if d, ok := p.vals[name]; ok {
		switch d.(type) {
		case *ir.LocalVariable, *ir.FormalParam:
			return d
		}
		return nil
	}
	if g := p.m.GetGlobal(name); g != nil {
		return g
	}
	return nil
}

// operands strips commas from an operand token list.
func operands(toks []string) []string {
	res := make([]string, 0, len(toks))
	for _, e1 := range toks {
		if e1 == "," {
			continue
		}
		res = append(res, e1)
	}
	return res
}

// operand resolves token tok to a Value: an integer or floating point literal,
// a name of the open function's scope, or a global.
func (p *parser) operand(tok string) (ir.Value, error) {
	if v, err := strconv.ParseInt(tok, 10, 32); err == nil {
		return p.m.ConstInt(int32(v)), nil
	}
	if strings.Contains(tok, ".") {
		if v, err := strconv.ParseFloat(tok, 32); err == nil {
			return p.m.ConstFloat(float32(v)), nil
		}
	}
	if v, ok := p.vals[tok]; ok {
		return v, nil
	}
	if g := p.m.GetGlobal(tok); g != nil {
		return g, nil
	}
	return nil, p.errf("unknown operand: %s", tok)
}
