package arm64

import (
	"mcc/src/ir"
)

// ---------------------
// ----- functions -----
// ---------------------

// adjustFormalParamInsts binds the formal parameters of function fn to their
// calling convention locations. Functions that perform calls copy the first
// eight parameters out of the argument registers with moves inserted right
// after the entry instruction; leaf functions keep them in the argument
// registers directly. Parameters beyond the eighth live at positive offsets
// above the saved frame pointer.
func adjustFormalParamInsts(fn *ir.Function) {
	params := fn.Params()

	// Only functions that call need to evacuate the argument registers.
	pm := 0
	if fn.ExistFuncCall() {
		pm = len(params)
	}
	n := pm
	if n > 8 {
		n = 8
	}
	moves := make([]*ir.Instruction, n)
	for k := 0; k < n; k++ {
		moves[k] = ir.NewMoveInstruction(fn, params[k], regVal[k])
	}
	insts := fn.Insts()
	res := make([]*ir.Instruction, 0, len(insts)+len(moves))
	res = append(res, insts[0])
	res = append(res, moves...)
	res = append(res, insts[1:]...)
	fn.SetInsts(res)

	// Leaf functions bind the first eight parameters to the argument registers
	// and drop any protection the allocator recorded for their old registers.
	k := n
	j := len(params)
	if j > 8 {
		j = 8
	}
	for ; k < j; k++ {
		if reg := params[k].RegId(); calleeSave(reg) {
			fn.RemoveProtectedReg(reg)
		}
		params[k].SetRegId(int32(k))
	}

	// Remaining parameters are passed by value over the caller's stack in
	// 4-byte steps above the protected register area.
	fpEsp := int64(fn.MaxDep()) + int64(len(fn.ProtectedRegs()))*4
	for ; k < len(params); k++ {
		if reg := params[k].RegId(); calleeSave(reg) {
			fn.RemoveProtectedReg(reg)
		}
		params[k].SetRegId(-1)
		params[k].SetMemoryAddr(fpRegNo, fpEsp)
		fpEsp += 4
	}
}

// adjustFuncCallInsts lowers every call site of function fn to the calling
// convention: arguments beyond the eighth are copied into fresh stack resident
// locals addressed off SP, the first eight are moved into their argument
// registers unless already there, one argument marker per operand precedes the
// call, and a result landing outside w0 is copied out after the call. The
// instruction vector is rebuilt rather than mutated during iteration.
func adjustFuncCallInsts(fn *ir.Function) {
	insts := fn.Insts()
	res := make([]*ir.Instruction, 0, len(insts))

	for _, inst := range insts {
		if inst.Op() != ir.OpFuncCall {
			res = append(res, inst)
			continue
		}

		// Arguments beyond the eighth pass over the stack.
		esp := int64(0)
		for k := 8; k < inst.OperandsNum(); k++ {
			arg := inst.Operand(k)
			if arg == ir.Value(inst) {
				break
			}
			newVal := fn.NewLocalVar("", ir.TypeInt)
			newVal.SetMemoryAddr(spRegNo, esp)
			esp += 4

			res = append(res, ir.NewMoveInstruction(fn, newVal, arg))
			inst.SetOperand(k, newVal)
		}

		// The first eight arguments pass in registers w0-w7. Operands the
		// allocator already placed in their argument register stay untouched.
		for k := 0; k < inst.OperandsNum() && k < 8; k++ {
			arg := inst.Operand(k)
			if arg == ir.Value(inst) {
				break
			}
			if arg.RegId() == int32(k) {
				continue
			}
			res = append(res, ir.NewMoveInstruction(fn, regVal[k], arg))
			inst.SetOperand(k, regVal[k])
		}

		// One argument marker per operand lets the instruction selector check
		// the ordering.
		for k := 0; k < inst.OperandsNum(); k++ {
			arg := inst.Operand(k)
			if arg == ir.Value(inst) {
				continue
			}
			res = append(res, ir.NewArgInstruction(fn, arg))
		}

		res = append(res, inst)

		// The return value lands in w0; copy it out when the result value was
		// assigned elsewhere.
		if inst.HasResultValue() && inst.RegId() != 0 {
			res = append(res, ir.NewMoveInstruction(fn, inst, regVal[0]))
		}
	}
	fn.SetInsts(res)
}
