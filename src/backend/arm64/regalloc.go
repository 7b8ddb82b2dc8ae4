package arm64

import (
	"mcc/src/ir"
	"mcc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// liveRange is the half open instruction index interval during which a Value's
// content must remain accessible, together with the location assigned to it.
type liveRange struct {
	value       ir.Value
	start       int   // Index of the defining instruction.
	end         int   // Index of the last use.
	reg         int32 // Assigned register, -1 when spilled.
	stackOffset int64 // Frame offset when spilled.
}

// ---------------------
// ----- functions -----
// ---------------------

// overlaps reports whether the two ranges intersect.
func (r *liveRange) overlaps(o *liveRange) bool {
	return !(r.end < o.start || r.start > o.end)
}

// calculateLiveRanges builds the live range table of function fn in a single
// forward pass over the instruction vector. Instructions that produce a result
// open a range ending at their last use; operands that are instruction results,
// locals or formal parameters widen an existing range or open one. Constants
// are ignored.
func calculateLiveRanges(fn *ir.Function) []liveRange {
	insts := fn.Insts()
	ranges := make([]liveRange, 0, len(insts))

	for pos, inst := range insts {
		if inst.HasResultValue() {
			ranges = append(ranges, liveRange{
				value:       inst,
				start:       pos,
				end:         findLastUse(inst, insts, pos),
				reg:         -1,
				stackOffset: -1,
			})
		}

		for i1 := 0; i1 < inst.OperandsNum(); i1++ {
			operand := inst.Operand(i1)
			if operand == ir.Value(inst) {
				continue
			}
			switch operand.(type) {
			case *ir.Instruction, *ir.LocalVariable, *ir.FormalParam:
				extendRangeIfExists(&ranges, operand, pos)
			}
		}
	}
	return ranges
}

// findLastUse scans the instruction vector from the end towards startPos and
// returns the index of the highest position that uses val, or startPos when no
// instruction does.
func findLastUse(val ir.Value, insts []*ir.Instruction, startPos int) int {
	for i1 := len(insts) - 1; i1 >= startPos; i1-- {
		for j := 0; j < insts[i1].OperandsNum(); j++ {
			if insts[i1].Operand(j) == val {
				return i1
			}
		}
	}
	return startPos
}

// extendRangeIfExists widens the range of value to currentPos, or opens a new
// range when none exists. Formal parameters are live from function entry.
func extendRangeIfExists(ranges *[]liveRange, value ir.Value, currentPos int) {
	for i1 := range *ranges {
		if (*ranges)[i1].value == value {
			if currentPos > (*ranges)[i1].end {
				(*ranges)[i1].end = currentPos
			}
			return
		}
	}
	start := currentPos
	if _, ok := value.(*ir.FormalParam); ok {
		start = 0
	}
	*ranges = append(*ranges, liveRange{
		value:       value,
		start:       start,
		end:         currentPos,
		reg:         -1,
		stackOffset: -1,
	})
}

// expireOldRanges returns the register of every active range that ended at or
// before pos to the free pool.
func expireOldRanges(active *[]liveRange, freeRegs *util.Stack, pos int) {
	res := (*active)[:0]
	for _, e1 := range *active {
		if e1.end <= pos {
			freeRegs.Push(e1.reg)
		} else {
			res = append(res, e1)
		}
	}
	*active = res
}

// allocateStackSlot reserves a fresh stack slot sized to type typ and grows the
// function's frame depth.
func allocateStackSlot(fn *ir.Function, typ ir.Type) int64 {
	offset := fn.MaxDep()
	fn.SetMaxDep(offset + typ.Size())
	return int64(offset)
}

// linearScanRegisterAllocation assigns a location to every live range: ranges
// are processed in ascending start order, expired registers return to the free
// pool, and address typed values or an empty pool spill to a stack slot. The
// free pool holds the callee saved registers, extended with the caller saved
// temporaries when the function performs no call.
func linearScanRegisterAllocation(ranges []liveRange, fn *ir.Function) {
	freeRegs := util.Stack{}
	for no := int32(19); no <= 28; no++ {
		freeRegs.Push(no)
	}
	if !fn.ExistFuncCall() {
		for no := int32(9); no <= 15; no++ {
			freeRegs.Push(no)
		}
	}

	active := make([]liveRange, 0, 16)

	for i1 := range ranges {
		// Expire ranges that ended before this one starts.
		expireOldRanges(&active, &freeRegs, ranges[i1].start)

		if !(ranges[i1].value.Type().IsArray() || freeRegs.Size() == 0) {
			ranges[i1].reg = freeRegs.Pop().(int32)
			active = append(active, ranges[i1])
		} else {
			// Spill to the stack.
			ranges[i1].stackOffset = allocateStackSlot(fn, ranges[i1].value.Type())
		}
	}

	// Publish the assignments to the values. Callee saved registers handed out
	// by the allocator join the function's protected set.
	for i1 := range ranges {
		if ranges[i1].reg != -1 {
			ranges[i1].value.SetRegId(ranges[i1].reg)
			if calleeSave(ranges[i1].reg) {
				fn.AddProtectedReg(ranges[i1].reg)
			}
		} else {
			ranges[i1].value.SetMemoryAddr(fpRegNo, ranges[i1].stackOffset)
		}
	}
}
