package arm64

import (
	"fmt"

	"mcc/src/ir"
	"mcc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// instSelector translates the instruction vector of one function to aarch64
// assembler through a per-opcode handler table. Selection state that persists
// across instructions is the last emitted integer comparison, used to fuse a
// following branch or boolean cast, and the number of argument markers seen
// since the last call.
type instSelector struct {
	ir           []*ir.Instruction
	iloc         *iloc
	fn           *ir.Function
	alloc        *scratchAllocator
	showLinearIR bool // Emit the IR instruction as a comment above its assembler.

	lstcmp       ir.IROp // Most recently emitted integer comparison, OpMax when consumed.
	realArgCount int     // Argument markers observed since the last call.

	handlers [ir.OpMax]func(*ir.Instruction)
	err      error
}

// -------------------
// ----- globals -----
// -------------------

// cmpmap holds the branch condition mnemonics of the integer comparisons in
// operator declaration order. A condition is complemented by toggling the low
// bit of its index.
var cmpmap = [...]string{"eq", "ne", "gt", "le", "ge", "lt"}

// ---------------------
// ----- functions -----
// ---------------------

// cstr returns the condition mnemonic of comparison operator op.
func cstr(op ir.IROp) string {
	return cmpmap[op-ir.OpIEq]
}

// cstrj returns the complemented condition mnemonic of comparison operator op.
func cstrj(op ir.IROp) string {
	return cmpmap[(op-ir.OpIEq)^1]
}

// newInstSelector returns an instruction selector over the given instruction
// vector, assembler buffer and scratch allocator.
func newInstSelector(insts []*ir.Instruction, il *iloc, fn *ir.Function, alloc *scratchAllocator) *instSelector {
	s := &instSelector{
		ir:     insts,
		iloc:   il,
		fn:     fn,
		alloc:  alloc,
		lstcmp: ir.OpMax,
	}

	s.handlers[ir.OpEntry] = s.translateEntry
	s.handlers[ir.OpExit] = s.translateExit

	s.handlers[ir.OpLabel] = s.translateLabel
	s.handlers[ir.OpGoto] = s.translateGoto

	s.handlers[ir.OpAssign] = s.translateAssign

	s.handlers[ir.OpIAdd] = s.translateAddInt32
	s.handlers[ir.OpISub] = s.translateSubInt32
	s.handlers[ir.OpIMul] = s.translateMulInt32
	s.handlers[ir.OpIDiv] = s.translateDivInt32
	s.handlers[ir.OpIMod] = s.translateRemInt32

	s.handlers[ir.OpFuncCall] = s.translateCall
	s.handlers[ir.OpArg] = s.translateArg

	s.handlers[ir.OpIEq] = s.translateBiOp
	s.handlers[ir.OpINe] = s.translateBiOp
	s.handlers[ir.OpIGt] = s.translateBiOp
	s.handlers[ir.OpIGe] = s.translateBiOp
	s.handlers[ir.OpILt] = s.translateBiOp
	s.handlers[ir.OpILe] = s.translateBiOp

	s.handlers[ir.OpFAdd] = s.translateFAdd
	s.handlers[ir.OpFSub] = s.translateFSub
	s.handlers[ir.OpFMul] = s.translateFMul
	s.handlers[ir.OpFDiv] = s.translateFDiv
	s.handlers[ir.OpFMod] = s.translateFMod

	s.handlers[ir.OpGep] = s.translateGep
	s.handlers[ir.OpStore] = s.translateStore
	s.handlers[ir.OpLoad] = s.translateLoad

	s.handlers[ir.OpCast] = s.translateCast

	s.handlers[ir.OpXor] = s.translateXorInt32
	return s
}

// run translates every non-dead instruction in order. An error is returned when
// selection ran out of scratch registers, which indicates a broken
// pre-allocation rewrite.
func (s *instSelector) run() error {
	for _, e1 := range s.ir {
		if !e1.Dead() {
			s.translate(e1)
		}
	}
	return s.err
}

// fail records the first fatal selection error.
func (s *instSelector) fail(format string, args ...interface{}) {
	if s.err == nil {
		s.err = fmt.Errorf(format, args...)
	}
	util.Logf(util.LogError, format, args...)
}

// translate dispatches instruction inst to its handler. Unknown operators are
// reported and skipped; emission continues best effort.
func (s *instSelector) translate(inst *ir.Instruction) {
	op := inst.Op()
	if op < 0 || op >= ir.OpMax || s.handlers[op] == nil {
		util.Logf(util.LogError, "translate: operator %d not supported", int(op))
		return
	}

	if s.showLinearIR {
		s.iloc.comment(inst.String())
	}

	s.handlers[op](inst)
}

// translateEntry emits the function prologue: the protected registers are
// pushed in pairs, a trailing odd one alone, followed by the stack frame
// allocation.
func (s *instSelector) translateEntry(inst *ir.Instruction) {
	protected := s.fn.ProtectedRegs()

	i1, m := 0, len(protected)-1
	for i1 < m {
		xa, xb := protected[i1], protected[i1+1]
		i1 += 2
		s.iloc.inst("stp", xreg(xa), xreg(xb), "[sp,#-16]!")
	}
	if i1 <= m {
		s.iloc.inst("str", xreg(protected[i1]), "[sp,#-16]!")
	}

	s.iloc.allocStack(s.fn, tmpRegNo)
}

// translateExit emits the function epilogue, reversing the prologue: the return
// value is placed in w0, the stack frame released and the protected registers
// popped in reverse order before the return.
func (s *instSelector) translateExit(inst *ir.Instruction) {
	if inst.OperandsNum() > 0 {
		s.iloc.loadVar(0, inst.Operand(0))
	}

	if off := frameSize(s.fn); off != 0 {
		if constExpr(off) {
			s.iloc.inst("add", "sp", "sp", toStr(int64(off)))
		} else {
			s.iloc.loadImm(tmpRegNo, off)
			s.iloc.inst("add", "sp", "sp", regName[tmpRegNo])
		}
	}

	protected := s.fn.ProtectedRegs()
	if len(protected) > 0 {
		m := len(protected)
		if m&1 == 1 {
			s.iloc.inst("ldr", xreg(protected[m-1]), "[sp],#16")
		}
		i1 := (m - 2) | 1
		for i1 > 0 {
			xa, xb := protected[i1-1], protected[i1]
			i1 -= 2
			s.iloc.inst("ldp", xreg(xa), xreg(xb), "[sp],#16")
		}
	}

	s.iloc.inst("ret")
}

// translateLabel emits the label. A preceding unconditional branch to this very
// label is dead and suppressed.
func (s *instSelector) translateLabel(inst *ir.Instruction) {
	if ai := s.iloc.last(); ai != nil && ai.opcode == "b" && ai.result == inst.Name() {
		ai.setDead()
	}
	s.iloc.label(inst.Name())
}

// translateGoto emits the branch. A conditional goto following a comparison
// consumes the remembered comparison and branches on its condition directly;
// without one the condition value's flags are assumed set and b.ne semantics
// apply.
func (s *instSelector) translateGoto(inst *ir.Instruction) {
	if inst.Cond() != nil {
		if s.lstcmp != ir.OpMax {
			s.iloc.branch(cstr(s.lstcmp), inst.IfTrue().Name())
			s.iloc.jump(inst.IfFalse().Name())
			s.lstcmp = ir.OpMax
		} else {
			s.iloc.branch("ne", inst.IfTrue().Name())
			s.iloc.jump(inst.IfFalse().Name())
		}
	} else {
		s.iloc.jump(inst.IfTrue().Name())
	}
}

// translateAssign emits a move. The four cases follow from whether source and
// destination are register resident; a memory to memory move stages through a
// scratch register.
func (s *instSelector) translateAssign(inst *ir.Instruction) {
	result := inst.Operand(0)
	arg1 := inst.Operand(1)

	arg1RegId := arg1.RegId()
	resultRegId := result.RegId()

	if arg1RegId != -1 {
		// Register to register or register to memory.
		s.iloc.storeVar(arg1RegId, result, tmpRegNo)
	} else if resultRegId != -1 {
		// Memory to register.
		s.iloc.loadVar(resultRegId, arg1)
	} else {
		// Memory to memory.
		tempRegNo := s.alloc.allocate()
		if tempRegNo == -1 {
			s.fail("no scratch register available for move of %s", arg1.Name())
			return
		}
		s.iloc.loadVar(tempRegNo, arg1)
		s.iloc.storeVar(tempRegNo, result, tmpRegNo)
		s.alloc.free(tempRegNo)
	}
}

// translateTwoOperator emits a three register instruction of the given
// mnemonic. Operands that are not register resident are materialised into the
// reserved scratches, and a memory resident result is stored back afterwards.
func (s *instSelector) translateTwoOperator(inst *ir.Instruction, op string) {
	result := ir.Value(inst)
	arg1 := inst.Operand(0)
	arg2 := inst.Operand(1)

	arg1RegNo := arg1.RegId()
	arg2RegNo := arg2.RegId()
	resultRegNo := inst.RegId()
	var loadResultRegNo, loadArg1RegNo, loadArg2RegNo int32

	if arg1RegNo == -1 {
		loadArg1RegNo = tmpRegNo
		s.iloc.loadVar(loadArg1RegNo, arg1)
	} else {
		loadArg1RegNo = arg1RegNo
	}

	if arg2RegNo == -1 {
		loadArg2RegNo = tmpRegNo2
		s.iloc.loadVar(loadArg2RegNo, arg2)
	} else {
		loadArg2RegNo = arg2RegNo
	}

	if resultRegNo == -1 {
		loadResultRegNo = tmpRegNo2
	} else {
		loadResultRegNo = resultRegNo
	}

	s.iloc.inst(op, regName[loadResultRegNo], regName[loadArg1RegNo], regName[loadArg2RegNo])

	if resultRegNo == -1 {
		s.iloc.storeVar(loadResultRegNo, result, tmpRegNo)
	}
}

// translateAddInt32 emits an integer addition.
func (s *instSelector) translateAddInt32(inst *ir.Instruction) {
	s.translateTwoOperator(inst, "add")
}

// translateSubInt32 emits an integer subtraction.
func (s *instSelector) translateSubInt32(inst *ir.Instruction) {
	s.translateTwoOperator(inst, "sub")
}

func (s *instSelector) translateMulInt32(inst *ir.Instruction) {
	s.translateTwoOperator(inst, "mul")
}

func (s *instSelector) translateDivInt32(inst *ir.Instruction) {
	s.translateTwoOperator(inst, "sdiv")
}

func (s *instSelector) translateFAdd(inst *ir.Instruction) {
	s.translateTwoOperator(inst, "fadd")
}

func (s *instSelector) translateFSub(inst *ir.Instruction) {
	s.translateTwoOperator(inst, "fsub")
}

func (s *instSelector) translateFMul(inst *ir.Instruction) {
	s.translateTwoOperator(inst, "fmul")
}

func (s *instSelector) translateFDiv(inst *ir.Instruction) {
	s.translateTwoOperator(inst, "fdiv")
}

// translateFMod reports the unsupported floating point remainder and emits the
// fmod placeholder so downstream assembly fails loudly instead of miscompiling.
func (s *instSelector) translateFMod(inst *ir.Instruction) {
	util.Logf(util.LogError, "floating point remainder is not supported by the target")
	s.translateTwoOperator(inst, "fmod")
}

// translateRemInt32 emits an integer remainder through the rem assembler
// macro. A result register colliding with an operand is saved to a scratch
// before emission since the macro destroys its destination early.
func (s *instSelector) translateRemInt32(inst *ir.Instruction) {
	arg1 := inst.Operand(0)
	arg2 := inst.Operand(1)
	reg1 := arg1.RegId()
	reg2 := arg2.RegId()
	res := inst.RegId()

	if res != -1 {
		if res == reg1 {
			s.iloc.inst("mov", regName[tmpRegNo], regName[reg1])
			arg1.SetRegId(tmpRegNo)
		} else if res == reg2 {
			s.iloc.inst("mov", regName[tmpRegNo], regName[reg2])
			arg2.SetRegId(tmpRegNo)
		}
	}
	s.translateTwoOperator(inst, "rem")
	arg1.SetRegId(reg1)
	arg2.SetRegId(reg2)
}

// translateGep computes the address of an array element. A constant subscript
// folds into the base offset at compile time; otherwise the address is formed
// with a shifted add for power of two strides or a madd for the rest, and the
// result records the scratch holding the address as its base register.
func (s *instSelector) translateGep(inst *ir.Instruction) {
	arg1 := inst.Operand(0)
	arg2 := inst.Operand(1)

	baseReg := int32(-1)
	var baseOff int64
	if b, o, ok := arg1.MemoryAddr(); ok {
		baseReg, baseOff = b, o
	}

	at, ok := inst.Type().(*ir.ArrayType)
	if !ok {
		util.Logf(util.LogError, "getelementptr %s is not array typed", inst.Name())
		return
	}
	l := at.ElementType().Size()

	if c, ok := arg2.(*ir.ConstInt); ok {
		inst.SetMemoryAddr(baseReg, baseOff+int64(c.Val())*int64(l))
		return
	}

	if baseReg == -1 {
		baseReg = tmpRegNo
		s.iloc.loadVar(baseReg, arg1)
	}
	reg2 := arg2.RegId()
	if reg2 == -1 {
		reg2 = tmpRegNo2
		s.iloc.loadVar(reg2, arg2)
	}
	if l&(l-1) == 0 {
		shift := 0
		for n := l; n > 1; n >>= 1 {
			shift++
		}
		s.iloc.inst("add", xreg(tmpRegNo2), xreg(baseReg), fmt.Sprintf("%s,lsl #%d", xreg(reg2), shift))
	} else {
		s.iloc.inst("mov", xreg(tmpRegNo), toStr(int64(l)))
		s.iloc.inst("madd", xreg(tmpRegNo2), xreg(reg2), fmt.Sprintf("%s,%s", xreg(tmpRegNo), xreg(baseReg)))
	}
	inst.SetMemoryAddr(tmpRegNo2, baseOff)
}

// translateStore resolves the pointer and value registers and emits the str.
func (s *instSelector) translateStore(inst *ir.Instruction) {
	ptr := inst.Operand(0)
	src := inst.Operand(1)

	basereg := ptr.RegId()
	loadreg := src.RegId()
	var off int64
	if loadreg == -1 {
		loadreg = tmpRegNo
		s.iloc.loadVar(loadreg, src)
	}
	if basereg == -1 {
		b, o, ok := ptr.MemoryAddr()
		if !ok {
			util.Logf(util.LogError, "store target %s has neither register nor address", ptr.Name())
			return
		}
		basereg, off = b, o
	}

	s.iloc.storeBase(loadreg, basereg, off, tmpRegNo)
}

// translateLoad resolves the pointer and destination registers and emits the ldr.
func (s *instSelector) translateLoad(inst *ir.Instruction) {
	addr := inst.Operand(0)

	basereg := addr.RegId()
	loadreg := inst.RegId()
	var off int64
	if loadreg == -1 {
		loadreg = tmpRegNo
		s.iloc.loadVar(loadreg, addr)
	}
	if basereg == -1 {
		b, o, ok := addr.MemoryAddr()
		if !ok {
			util.Logf(util.LogError, "load source %s has neither register nor address", addr.Name())
			return
		}
		basereg, off = b, o
	}
	s.iloc.loadBase(loadreg, basereg, off)
}

// translateBiOp lowers an integer comparison. The comparison is remembered for
// the following branch or cast. When comparing against zero right after an add
// or sub whose destination is the compared register the previous instruction
// turns into its flag setting variant; otherwise a subs against the zero
// register materialises the flags. The handler returns after the comparison is
// lowered.
func (s *instSelector) translateBiOp(inst *ir.Instruction) {
	switch inst.Op() {
	case ir.OpIEq, ir.OpINe, ir.OpIGt, ir.OpILe, ir.OpIGe, ir.OpILt:
		s.lstcmp = inst.Op()
		if v, ok := inst.Operand(1).(*ir.ConstInt); ok && v.Val() == 0 {
			it := s.iloc.last()
			reg := inst.Operand(0).RegId()
			if it != nil && reg >= 0 && regName[reg] == it.result &&
				(it.opcode == "add" || it.opcode == "sub") {
				it.opcode += "s"
				return
			}
		}
		x := inst.RegId()
		inst.SetRegId(zrRegNo)
		s.translateTwoOperator(inst, "subs")
		inst.SetRegId(x)
	}
}

// translateCast lowers a type conversion. Only the boolean to integer cast
// emits code, synthesising the remembered comparison's condition with cset;
// the other conversions are produced directly by the IR.
func (s *instSelector) translateCast(inst *ir.Instruction) {
	reg := inst.RegId()
	switch inst.CastKind() {
	case ir.CastBoolToInt:
		if s.lstcmp == ir.OpMax {
			util.Logf(util.LogError, "cast %s has no preceding comparison", inst.Name())
			return
		}
		if reg == -1 {
			reg = tmpRegNo2
		}
		s.iloc.inst("cset", regName[reg], cstr(s.lstcmp))
		if inst.RegId() == -1 {
			s.iloc.storeVar(tmpRegNo2, inst, tmpRegNo)
		}
	}
}

// translateXorInt32 lowers an exclusive or. An xor of a comparison result with
// the constant 1 realises boolean negation and collapses to a cset with the
// complemented condition; everything else emits an eor.
func (s *instSelector) translateXorInt32(inst *ir.Instruction) {
	l, _ := inst.Operand(0).(*ir.Instruction)
	v, _ := inst.Operand(1).(*ir.ConstInt)
	if v != nil && l != nil && v.Val() == 1 && l.Op() >= ir.OpIEq && l.Op() <= ir.OpILt {
		regId := inst.RegId()
		loadRegId := regId
		if regId == -1 {
			loadRegId = s.alloc.allocateFor(inst)
			if loadRegId == -1 {
				s.fail("no scratch register available for %s", inst.Name())
				return
			}
		}
		s.iloc.inst("cset", regName[loadRegId], cstrj(l.Op()))
		if regId == -1 {
			s.iloc.storeVar(loadRegId, inst, tmpRegNo)
		}
		s.alloc.freeVal(inst)
		return
	}
	s.translateTwoOperator(inst, "eor")
}

// translateCall reserves the argument registers, re-issues the argument moves
// through translateAssign and emits the branch with link. The argument
// registers are released afterwards and the marker count reset.
func (s *instSelector) translateCall(inst *ir.Instruction) {
	operandNum := len(inst.Callee().Params())

	if operandNum != s.realArgCount && s.realArgCount != 0 {
		util.Logf(util.LogError, "argument marker count %d does not match call arity %d",
			s.realArgCount, operandNum)
	}

	if operandNum > 0 {
		// Pin the argument registers so staging within the call prologue
		// cannot clobber them.
		for no := int32(0); no < 8; no++ {
			s.alloc.allocateReg(no)
		}

		// Arguments beyond the eighth pass over the stack.
		esp := int64(0)
		for k := 8; k < inst.OperandsNum(); k++ {
			arg := inst.Operand(k)
			newVal := s.fn.NewMemVariable(arg.Type())
			newVal.SetMemoryAddr(spRegNo, esp)
			esp += 4

			s.translateAssign(ir.NewMoveInstruction(s.fn, newVal, arg))
		}

		d := 0
		for k := 0; k < inst.OperandsNum() && k < 8; k++ {
			arg := inst.Operand(k)
			if arg == ir.Value(inst) {
				continue
			}
			s.translateAssign(ir.NewMoveInstruction(s.fn, regVal[d], arg))
			d++
		}
	}

	s.iloc.call(inst.Callee().Name())

	if operandNum > 0 {
		for no := int32(0); no < 8; no++ {
			s.alloc.free(no)
		}
	}
	s.realArgCount = 0
}

// translateArg validates the location of a call argument and emits nothing.
// The first eight must sit in their argument register, the rest at an SP based
// address.
func (s *instSelector) translateArg(inst *ir.Instruction) {
	src := inst.Operand(0)
	regId := src.RegId()

	if s.realArgCount < 8 {
		if regId != -1 {
			if regId != int32(s.realArgCount) {
				util.Logf(util.LogError, "argument %d register allocation mismatch: %d",
					s.realArgCount+1, regId)
			}
		} else {
			util.Logf(util.LogError, "argument %d is not register resident", s.realArgCount+1)
		}
	} else {
		base, _, ok := src.MemoryAddr()
		if !ok || base != spRegNo {
			util.Logf(util.LogError, "argument %d is not SP addressed", s.realArgCount+1)
		}
	}

	s.realArgCount++
}
