package ir

import (
	"fmt"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Function is an ordered vector of instructions plus the metadata the backend
// reads: formal parameters, the return value, the exit label, stack frame depth,
// the protected register set and call site statistics.
type Function struct {
	module    *Module
	name      string
	typ       Type // Return type.
	params    []*FormalParam
	locals    []*LocalVariable
	insts     []*Instruction
	retVal    *LocalVariable // Return value variable, <nil> for void functions.
	exitLabel *Instruction   // Label of the function epilogue.

	maxDep        int32   // Maximum stack frame depth in bytes.
	maxCallArgs   int     // Maximum argument count over all call sites in the function.
	existFuncCall bool    // Set true if the function performs any call.
	protectedRegs []int32 // Callee saved registers the prologue must protect.
	builtin       bool    // Builtin functions have no body and are not compiled.

	tmpSeq   int // Sequence number for temporaries.
	localSeq int // Sequence number for unnamed locals.
}

// ---------------------
// ----- functions -----
// ---------------------

// Name returns the name of the function.
func (f *Function) Name() string { return f.name }

// Type returns the return type of the function.
func (f *Function) Type() Type { return f.typ }

// Module returns the module the function belongs to.
func (f *Function) Module() *Module { return f.module }

// Params returns the formal parameters of the function.
func (f *Function) Params() []*FormalParam { return f.params }

// Locals returns the local variables of the function.
func (f *Function) Locals() []*LocalVariable { return f.locals }

// Insts returns the instruction vector of the function.
func (f *Function) Insts() []*Instruction { return f.insts }

// SetInsts replaces the instruction vector of the function. Used by the calling
// convention rewriter, which builds a new vector rather than mutating during
// iteration.
func (f *Function) SetInsts(insts []*Instruction) { f.insts = insts }

// RetVal returns the return value variable, or <nil> for void functions.
func (f *Function) RetVal() *LocalVariable { return f.retVal }

// ExitLabel returns the label instruction of the function epilogue.
func (f *Function) ExitLabel() *Instruction { return f.exitLabel }

// MaxDep returns the maximum stack frame depth of the function in bytes.
func (f *Function) MaxDep() int32 { return f.maxDep }

// SetMaxDep sets the maximum stack frame depth of the function in bytes.
func (f *Function) SetMaxDep(dep int32) { f.maxDep = dep }

// MaxCallArgCnt returns the maximum argument count over all call sites in the function.
func (f *Function) MaxCallArgCnt() int { return f.maxCallArgs }

// ExistFuncCall returns true if the function performs any call.
func (f *Function) ExistFuncCall() bool { return f.existFuncCall }

// Builtin returns true if the function is a builtin without a body.
func (f *Function) Builtin() bool { return f.builtin }

// ProtectedRegs returns the registers the function prologue must protect.
func (f *Function) ProtectedRegs() []int32 { return f.protectedRegs }

// AddProtectedReg appends register no to the protected set unless already present.
func (f *Function) AddProtectedReg(no int32) {
	for _, e1 := range f.protectedRegs {
		if e1 == no {
			return
		}
	}
	f.protectedRegs = append(f.protectedRegs, no)
}

// RemoveProtectedReg erases register no from the protected set.
func (f *Function) RemoveProtectedReg(no int32) {
	for i1, e1 := range f.protectedRegs {
		if e1 == no {
			f.protectedRegs = append(f.protectedRegs[:i1], f.protectedRegs[i1+1:]...)
			return
		}
	}
}

// AddParam appends a formal parameter of the given name and type to the function.
func (f *Function) AddParam(name string, typ Type) *FormalParam {
	p := &FormalParam{
		valueBase: newValueBase(name, typ),
		index:     len(f.params),
	}
	f.params = append(f.params, p)
	return p
}

// NewLocalVar creates a function local variable of the given type. An empty name
// assigns a sequenced IR name.
func (f *Function) NewLocalVar(name string, typ Type) *LocalVariable {
	if name == "" {
		name = fmt.Sprintf("%%l%d", f.localSeq)
		f.localSeq++
	}
	l := &LocalVariable{valueBase: newValueBase(name, typ)}
	f.locals = append(f.locals, l)
	return l
}

// NewMemVariable creates an anonymous memory resident Value used for passing
// arguments over the stack.
func (f *Function) NewMemVariable(typ Type) *MemVariable {
	return &MemVariable{valueBase: newValueBase("", typ)}
}

// NewLabel creates a detached label instruction. The label receives its module
// unique name during code generation.
func (f *Function) NewLabel() *Instruction {
	return newInstruction(f, OpLabel, TypeVoid)
}

// Append appends instruction inst to the function's instruction vector.
func (f *Function) Append(inst *Instruction) *Instruction {
	f.insts = append(f.insts, inst)
	return inst
}

// nextTemp assigns a sequenced temporary IR name to instruction inst.
func (f *Function) nextTemp(inst *Instruction) *Instruction {
	inst.name = fmt.Sprintf("%%t%d", f.tmpSeq)
	f.tmpSeq++
	return inst
}

// CreateBinary appends a binary instruction of operator op with the given result type.
func (f *Function) CreateBinary(op IROp, a, b Value, typ Type) *Instruction {
	inst := newInstruction(f, op, typ)
	inst.operands = []Value{a, b}
	return f.Append(f.nextTemp(inst))
}

// CreateMove appends a move instruction copying src into dst.
func (f *Function) CreateMove(dst, src Value) *Instruction {
	return f.Append(NewMoveInstruction(f, dst, src))
}

// CreateGoto appends an unconditional goto to target.
func (f *Function) CreateGoto(target *Instruction) *Instruction {
	inst := newInstruction(f, OpGoto, TypeVoid)
	inst.ifTrue = target
	return f.Append(inst)
}

// CreateCondGoto appends a conditional goto branching to ifTrue when cond holds
// and to ifFalse otherwise.
func (f *Function) CreateCondGoto(cond Value, ifTrue, ifFalse *Instruction) *Instruction {
	inst := newInstruction(f, OpGoto, TypeVoid)
	inst.cond = cond
	inst.ifTrue = ifTrue
	inst.ifFalse = ifFalse
	return f.Append(inst)
}

// CreateCall appends a call to function callee with the given arguments. Call
// site statistics of the calling function are updated.
func (f *Function) CreateCall(callee *Function, args []Value) *Instruction {
	inst := newInstruction(f, OpFuncCall, callee.typ)
	inst.operands = args
	inst.callee = callee
	f.existFuncCall = true
	if len(args) > f.maxCallArgs {
		f.maxCallArgs = len(args)
	}
	if inst.HasResultValue() {
		f.nextTemp(inst)
	}
	return f.Append(inst)
}

// CreateCast appends a cast instruction converting src to the given type.
func (f *Function) CreateCast(kind CastKind, src Value, typ Type) *Instruction {
	inst := newInstruction(f, OpCast, typ)
	inst.operands = []Value{src}
	inst.castKind = kind
	return f.Append(f.nextTemp(inst))
}

// CreateGep appends a get-element-pointer instruction indexing the array base.
// The instruction carries the array type of the level being indexed.
func (f *Function) CreateGep(base, index Value, typ *ArrayType) *Instruction {
	inst := newInstruction(f, OpGep, typ)
	inst.operands = []Value{base, index}
	return f.Append(f.nextTemp(inst))
}

// CreateLoad appends a load of the given result type through pointer ptr.
func (f *Function) CreateLoad(ptr Value, typ Type) *Instruction {
	inst := newInstruction(f, OpLoad, typ)
	inst.operands = []Value{ptr}
	return f.Append(f.nextTemp(inst))
}

// CreateStore appends a store of val through pointer ptr.
func (f *Function) CreateStore(ptr, val Value) *Instruction {
	inst := newInstruction(f, OpStore, TypeVoid)
	inst.operands = []Value{ptr, val}
	return f.Append(inst)
}

// Finish appends the epilogue of the function: the exit label followed by the
// exit instruction carrying the return value.
func (f *Function) Finish() {
	f.Append(f.exitLabel)
	exit := newInstruction(f, OpExit, TypeVoid)
	if f.retVal != nil {
		exit.operands = []Value{f.retVal}
	}
	f.Append(exit)
}
