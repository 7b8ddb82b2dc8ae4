package arm64

import (
	"fmt"
	"strconv"

	"mcc/src/ir"
	"mcc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// armInst is one line of the assembler buffer: an opcode, up to three operands
// and a dead flag that suppresses output.
type armInst struct {
	opcode string
	result string
	arg1   string
	arg2   string
	dead   bool
}

// iloc is the ordered assembler line buffer of one function. It provides the
// addressing and immediate materialisation primitives instruction selection
// builds on.
type iloc struct {
	code []*armInst
}

// ---------------------
// ----- functions -----
// ---------------------

// newILoc returns an empty assembler buffer.
func newILoc() *iloc {
	return &iloc{code: make([]*armInst, 0, 64)}
}

// setDead suppresses output of the line.
func (a *armInst) setDead() { a.dead = true }

// output renders the line. Dead lines render empty; labels render flush left.
func (a *armInst) output() string {
	if a.dead {
		return ""
	}
	if a.result == ":" {
		return a.opcode + ":"
	}
	s := a.opcode
	if a.result != "" {
		s += " " + a.result
	}
	if a.arg1 != "" {
		s += ", " + a.arg1
	}
	if a.arg2 != "" {
		s += ", " + a.arg2
	}
	return s
}

// emit appends a line to the buffer.
func (il *iloc) emit(op string, args ...string) {
	a := &armInst{opcode: op}
	if len(args) > 0 {
		a.result = args[0]
	}
	if len(args) > 1 {
		a.arg1 = args[1]
	}
	if len(args) > 2 {
		a.arg2 = args[2]
	}
	il.code = append(il.code, a)
}

// last returns the last line of the buffer, or <nil> if the buffer is empty.
func (il *iloc) last() *armInst {
	if len(il.code) == 0 {
		return nil
	}
	return il.code[len(il.code)-1]
}

// label appends a label line.
func (il *iloc) label(name string) {
	il.emit(name, ":")
}

// inst appends a generic instruction line.
func (il *iloc) inst(op string, args ...string) {
	il.emit(op, args...)
}

// comment appends a comment line.
func (il *iloc) comment(s string) {
	il.emit("@", s)
}

// toStr formats an immediate operand.
func toStr(num int64) string {
	return "#" + strconv.FormatInt(num, 10)
}

// loadImm materialises a 32-bit integer constant into register no. Zero uses
// the zero register; constants with all four half-words of the value and its
// complement populated need a mov/movk pair, everything else a single mov.
func (il *iloc) loadImm(no int32, constant int32) {
	if constant == 0 {
		il.emit("mov", regName[no], "wzr")
		return
	}
	zlow := uint16(uint32(constant))
	zhigh := uint16(uint32(constant) >> 16)
	nlow := uint16(^uint32(constant))
	nhigh := uint16(^uint32(constant) >> 16)
	if zlow != 0 && zhigh != 0 && nlow != 0 && nhigh != 0 {
		il.emit("mov", regName[no], "#"+strconv.Itoa(int(zlow)))
		il.emit("movk", regName[no], "#"+strconv.Itoa(int(zhigh)), "lsl #16")
	} else {
		il.emit("mov", regName[no], "#"+strconv.FormatInt(int64(constant), 10))
	}
}

// loadSymbol loads the value of global symbol name into register no through a
// page relative address.
func (il *iloc) loadSymbol(no int32, name string) {
	x := xreg(no)
	il.emit("adrp", x, name)
	il.emit("ldr", regName[no], "["+x+",:lo12:"+name+"]")
}

// loadBase loads from base register plus offset into register no. Offsets
// outside the displacement range are first materialised into the destination
// register and used as an index.
func (il *iloc) loadBase(no int32, baseRegNo int32, offset int64) {
	rs := regName[no]
	base := xreg(baseRegNo)

	if isDisp(offset) {
		if offset != 0 {
			base += "," + toStr(offset)
		}
	} else {
		il.loadImm(no, int32(offset))
		base += "," + rs
	}

	il.emit("ldr", rs, "["+base+"]")
}

// storeBase stores register no to base register plus offset. Offsets outside
// the displacement range are materialised into the caller provided scratch.
func (il *iloc) storeBase(no int32, baseRegNo int32, offset int64, tmpRegNo int32) {
	base := xreg(baseRegNo)

	if isDisp(offset) {
		if offset != 0 {
			base += "," + toStr(offset)
		}
	} else {
		il.loadImm(tmpRegNo, int32(offset))
		base += "," + regName[tmpRegNo]
	}

	il.emit("str", regName[no], "["+base+"]")
}

// movReg moves src to dst if they differ.
func (il *iloc) movReg(dst, src int32) {
	if dst != src {
		il.emit("mov", regName[dst], regName[src])
	}
}

// loadVar loads Value src into register no, dispatching on the kind of the
// Value: constants are materialised, register residents moved, globals read
// through their symbol and memory residents loaded from base plus offset.
func (il *iloc) loadVar(no int32, src ir.Value) {
	if c, ok := src.(*ir.ConstInt); ok {
		il.loadImm(no, c.Val())
		return
	}
	if regId := src.RegId(); regId != -1 {
		il.movReg(no, regId)
		return
	}
	if g, ok := src.(*ir.GlobalVariable); ok {
		il.loadSymbol(no, g.Name())
		return
	}
	base, offset, ok := src.MemoryAddr()
	if !ok {
		util.Logf(util.LogError, "value %s has neither register nor address", src.Name())
		return
	}
	il.loadBase(no, base, offset)
}

// storeVar stores register no into Value dst, the mirror of loadVar. Globals
// are addressed page relative through the caller provided scratch without
// reloading the address.
func (il *iloc) storeVar(no int32, dst ir.Value, tmpRegNo int32) {
	if regId := dst.RegId(); regId != -1 {
		il.movReg(regId, no)
		return
	}
	if g, ok := dst.(*ir.GlobalVariable); ok {
		x := xreg(tmpRegNo)
		il.emit("adrp", x, g.Name())
		il.emit("str", regName[no], "["+x+",:lo12:"+g.Name()+"]")
		return
	}
	base, offset, ok := dst.MemoryAddr()
	if !ok {
		util.Logf(util.LogError, "value %s has neither register nor address", dst.Name())
		return
	}
	il.storeBase(no, base, offset, tmpRegNo)
}

// leaStack computes base register plus offset into register no.
func (il *iloc) leaStack(no int32, baseRegNo int32, offset int32) {
	rs := xreg(no)
	base := xreg(baseRegNo)
	if constExpr(offset) {
		il.emit("add", rs, base, toStr(int64(offset)))
	} else {
		il.loadImm(no, offset)
		il.emit("add", rs, base, rs)
	}
}

// frameSize returns the stack frame size of function fn: the maximum frame
// depth plus the argument overflow area of eight bytes per stack passed call
// argument.
func frameSize(fn *ir.Function) int32 {
	argCnt := fn.MaxCallArgCnt() - 8
	if argCnt < 0 {
		argCnt = 0
	}
	return fn.MaxDep() + int32(argCnt)*8
}

// allocStack grows the stack frame of function fn. The frame pointer is set
// above the argument overflow area.
func (il *iloc) allocStack(fn *ir.Function, tmpRegNo int32) {
	argCnt := fn.MaxCallArgCnt() - 8
	if argCnt < 0 {
		argCnt = 0
	}

	off := frameSize(fn)
	if off == 0 {
		return
	}

	if constExpr(off) {
		il.emit("sub", "sp", "sp", toStr(int64(off)))
	} else {
		il.loadImm(tmpRegNo, off)
		il.emit("sub", "sp", "sp", regName[tmpRegNo])
	}

	il.inst("add", "x29", "sp", toStr(int64(argCnt)*8))
}

// call emits a branch with link to function name.
func (il *iloc) call(name string) {
	il.emit("bl", name)
}

// jump emits an unconditional branch to label.
func (il *iloc) jump(label string) {
	il.emit("b", label)
}

// branch emits a conditional branch with condition cond to label.
func (il *iloc) branch(cond, label string) {
	il.emit("b"+cond, label)
}

// deleteUsedLabel marks every label no branch mentions as dead.
func (il *iloc) deleteUsedLabel() {
	labels := make([]*armInst, 0, 8)
	for _, e1 := range il.code {
		if !e1.dead && e1.result == ":" {
			labels = append(labels, e1)
		}
	}

	for _, l := range labels {
		used := false
		for _, e1 := range il.code {
			if !e1.dead && len(e1.opcode) > 0 && e1.opcode[0] == 'b' && e1.result == l.opcode {
				used = true
				break
			}
		}
		if !used {
			l.setDead()
		}
	}
}

// output serialises the non-dead lines of the buffer to writer wr. Labels are
// written flush left, every other line is indented one tab.
func (il *iloc) output(wr *util.Writer) {
	for _, e1 := range il.code {
		s := e1.output()
		if e1.result == ":" {
			if !e1.dead {
				wr.Write("%s\n", s)
			}
			continue
		}
		if s != "" {
			wr.Write("\t%s\n", s)
		}
	}
}

// String renders the buffer for tests and diagnostics.
func (il *iloc) String() string {
	s := ""
	for _, e1 := range il.code {
		if line := e1.output(); line != "" {
			s += fmt.Sprintf("%s\n", line)
		}
	}
	return s
}
