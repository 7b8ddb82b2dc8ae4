// Package llvm provides means to lower the linear IR through the system
// installed LLVM runtime, as an alternative to the native backends.
package llvm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

import (
	"tinygo.org/x/go-llvm"
)

import (
	"mcc/src/ir"
	"mcc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// funcState holds the per-function translation state: the LLVM function, the
// SSA values of IR temporaries, the stack slots of locals and parameters, and
// the basic blocks of labels.
type funcState struct {
	fun    llvm.Value
	vals   map[ir.Value]llvm.Value
	slots  map[ir.Value]llvm.Value
	blocks map[*ir.Instruction]llvm.BasicBlock
}

// ---------------------
// ----- functions -----
// ---------------------

// GenLLVM lowers module m to an object file through LLVM. The output file is
// the configured output path, or the source file name with an .o extension.
func GenLLVM(opt util.Options, m *ir.Module) error {
	if m == nil {
		return errors.New("IR module is <nil>")
	}

	ctx := llvm.NewContext()
	defer ctx.Dispose()

	// Builder constructs LLVM IR instructions on basic block level.
	b := ctx.NewBuilder()
	defer b.Dispose()

	mod := ctx.NewModule(m.Name)
	defer mod.Dispose()

	// Generate global variables.
	globals := make(map[ir.Value]llvm.Value, len(m.Globals()))
	for _, e1 := range m.Globals() {
		g := llvm.AddGlobal(mod, llType(e1.Type()), e1.Name())
		g.SetInitializer(llvm.ConstInt(llvm.Int32Type(), uint64(uint32(e1.IntVal())), true))
		globals[e1] = g
	}

	// Generate function declarations first so calls can reference functions
	// declared later in the module.
	funs := make(map[*ir.Function]llvm.Value, len(m.Functions()))
	for _, e1 := range m.Functions() {
		atyp := make([]llvm.Type, len(e1.Params()))
		for i1, e2 := range e1.Params() {
			atyp[i1] = llType(e2.Type())
		}
		ftyp := llvm.FunctionType(llType(e1.Type()), atyp, false)
		funs[e1] = llvm.AddFunction(mod, e1.Name(), ftyp)
	}

	// Generate function bodies.
	for _, e1 := range m.Functions() {
		if e1.Builtin() {
			continue
		}
		if err := genFuncBody(b, e1, funs, globals); err != nil {
			return err
		}
	}

	if opt.Verbose {
		fmt.Println("LLVM IR:")
		mod.Dump()
	}

	// Initialise LLVM code generation.
	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargets()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()

	var tt string
	switch opt.TargetArch {
	case util.Aarch64:
		tt = "aarch64-unknown-linux-gnu"
	case util.Riscv64:
		tt = "riscv64-unknown-linux-gnu"
	default:
		return errors.New("unsupported target architecture for LLVM code generation")
	}

	t, err := llvm.GetTargetFromTriple(tt)
	if err != nil {
		return err
	}

	tm := t.CreateTargetMachine(tt, "generic", "",
		llvm.CodeGenLevelNone,
		llvm.RelocDefault,
		llvm.CodeModelDefault)
	defer tm.Dispose()

	td := tm.CreateTargetData()
	defer td.Dispose()

	mod.SetDataLayout(td.String())
	mod.SetTarget(tm.Triple())

	// Compile target and store in memory.
	buf, err := tm.EmitToMemoryBuffer(mod, llvm.ObjectFile)
	if err != nil {
		return err
	} else if buf.IsNil() {
		return errors.New("could not emit compiled code to memory")
	}

	// Open/create file and write compiled code to output file.
	var out string
	if len(opt.Out) > 0 {
		out = opt.Out
	} else {
		out = fmt.Sprintf("./%s.o", strings.TrimSuffix(filepath.Base(opt.Src), filepath.Ext(opt.Src)))
	}

	fd, err := os.OpenFile(out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0755)
	if err != nil {
		return err
	}
	defer func() {
		if err := fd.Close(); err != nil {
			fmt.Println(err)
		}
	}()
	if _, err := fd.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}

// llType maps an IR type to its LLVM equivalent.
func llType(t ir.Type) llvm.Type {
	switch typ := t.(type) {
	case *ir.VoidType:
		return llvm.VoidType()
	case *ir.IntegerType:
		if typ.IsBool() {
			return llvm.Int1Type()
		}
		return llvm.Int32Type()
	case *ir.FloatType:
		return llvm.FloatType()
	case *ir.ArrayType:
		return llvm.ArrayType(llType(typ.ElementType()), int(typ.NumElements()))
	}
	return llvm.Int32Type()
}

// genFuncBody lowers the instruction vector of function fn. The linear IR maps
// onto basic blocks split at every label; a block without an explicit branch
// falls through to the label that follows it.
func genFuncBody(b llvm.Builder, fn *ir.Function, funs map[*ir.Function]llvm.Value, globals map[ir.Value]llvm.Value) error {
	st := funcState{
		fun:    funs[fn],
		vals:   make(map[ir.Value]llvm.Value, 32),
		slots:  make(map[ir.Value]llvm.Value, 16),
		blocks: make(map[*ir.Instruction]llvm.BasicBlock, 8),
	}

	entry := llvm.AddBasicBlock(st.fun, "")
	b.SetInsertPointAtEnd(entry)

	// Allocate stack slots for locals and parameters, and store the incoming
	// parameter values.
	for _, e1 := range fn.Locals() {
		st.slots[e1] = b.CreateAlloca(llType(e1.Type()), "")
	}
	for i1, e1 := range fn.Params() {
		alloc := b.CreateAlloca(llType(e1.Type()), "")
		b.CreateStore(st.fun.Param(i1), alloc)
		st.slots[e1] = alloc
	}

	// Create one basic block per label.
	for _, e1 := range fn.Insts() {
		if e1.Op() == ir.OpLabel {
			st.blocks[e1] = llvm.AddBasicBlock(st.fun, "")
		}
	}

	terminated := false
	for _, e1 := range fn.Insts() {
		if err := genInstruction(b, e1, &st, globals, funs, &terminated); err != nil {
			return err
		}
	}
	if !terminated {
		// Defensive terminator for a body that does not end in a branch.
		if fn.Type().IsVoid() {
			b.CreateRetVoid()
		} else {
			b.CreateRet(llvm.ConstInt(llvm.Int32Type(), 0, true))
		}
	}
	return nil
}

// genInstruction lowers a single IR instruction.
func genInstruction(b llvm.Builder, inst *ir.Instruction, st *funcState,
	globals map[ir.Value]llvm.Value, funs map[*ir.Function]llvm.Value, terminated *bool) error {

	// value resolves operand v to its LLVM value, loading memory residents.
	value := func(v ir.Value) llvm.Value {
		switch c := v.(type) {
		case *ir.ConstInt:
			return llvm.ConstInt(llvm.Int32Type(), uint64(uint32(c.Val())), true)
		case *ir.ConstFloat:
			return llvm.ConstFloat(llvm.FloatType(), float64(c.Val()))
		case *ir.LocalVariable, *ir.FormalParam:
			return b.CreateLoad(st.slots[v], "")
		case *ir.GlobalVariable:
			return b.CreateLoad(globals[v], "")
		}
		return st.vals[v]
	}

	// pointer resolves operand v to an address.
	pointer := func(v ir.Value) llvm.Value {
		switch v.(type) {
		case *ir.LocalVariable, *ir.FormalParam:
			return st.slots[v]
		case *ir.GlobalVariable:
			return globals[v]
		}
		return st.vals[v]
	}

	switch inst.Op() {
	case ir.OpEntry:
		// Handled by genFuncBody.
	case ir.OpLabel:
		bb := st.blocks[inst]
		if !*terminated {
			b.CreateBr(bb)
		}
		b.SetInsertPointAtEnd(bb)
		*terminated = false
	case ir.OpGoto:
		if inst.Cond() != nil {
			b.CreateCondBr(value(inst.Cond()), st.blocks[inst.IfTrue()], st.blocks[inst.IfFalse()])
		} else {
			b.CreateBr(st.blocks[inst.IfTrue()])
		}
		*terminated = true
	case ir.OpExit:
		if inst.OperandsNum() > 0 {
			b.CreateRet(value(inst.Operand(0)))
		} else {
			b.CreateRetVoid()
		}
		*terminated = true
	case ir.OpAssign:
		dst := inst.Operand(0)
		src := value(inst.Operand(1))
		switch dst.(type) {
		case *ir.LocalVariable, *ir.FormalParam:
			b.CreateStore(src, st.slots[dst])
		case *ir.GlobalVariable:
			b.CreateStore(src, globals[dst])
		default:
			st.vals[dst] = src
		}
	case ir.OpIAdd:
		st.vals[inst] = b.CreateAdd(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpISub:
		st.vals[inst] = b.CreateSub(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpIMul:
		st.vals[inst] = b.CreateMul(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpIDiv:
		st.vals[inst] = b.CreateSDiv(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpIMod:
		st.vals[inst] = b.CreateSRem(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpXor:
		st.vals[inst] = b.CreateXor(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpIEq:
		st.vals[inst] = b.CreateICmp(llvm.IntEQ, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpINe:
		st.vals[inst] = b.CreateICmp(llvm.IntNE, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpIGt:
		st.vals[inst] = b.CreateICmp(llvm.IntSGT, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpILe:
		st.vals[inst] = b.CreateICmp(llvm.IntSLE, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpIGe:
		st.vals[inst] = b.CreateICmp(llvm.IntSGE, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpILt:
		st.vals[inst] = b.CreateICmp(llvm.IntSLT, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFAdd:
		st.vals[inst] = b.CreateFAdd(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFSub:
		st.vals[inst] = b.CreateFSub(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFMul:
		st.vals[inst] = b.CreateFMul(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFDiv:
		st.vals[inst] = b.CreateFDiv(value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFEq:
		st.vals[inst] = b.CreateFCmp(llvm.FloatOEQ, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFNe:
		st.vals[inst] = b.CreateFCmp(llvm.FloatONE, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFGt:
		st.vals[inst] = b.CreateFCmp(llvm.FloatOGT, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFGe:
		st.vals[inst] = b.CreateFCmp(llvm.FloatOGE, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFLt:
		st.vals[inst] = b.CreateFCmp(llvm.FloatOLT, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFLe:
		st.vals[inst] = b.CreateFCmp(llvm.FloatOLE, value(inst.Operand(0)), value(inst.Operand(1)), "")
	case ir.OpFMod:
		return fmt.Errorf("floating point remainder is not supported")
	case ir.OpFuncCall:
		args := make([]llvm.Value, inst.OperandsNum())
		for i1 := 0; i1 < inst.OperandsNum(); i1++ {
			args[i1] = value(inst.Operand(i1))
		}
		res := b.CreateCall(funs[inst.Callee()], args, "")
		if inst.HasResultValue() {
			st.vals[inst] = res
		}
	case ir.OpGep:
		zero := llvm.ConstInt(llvm.Int32Type(), 0, false)
		st.vals[inst] = b.CreateGEP(pointer(inst.Operand(0)),
			[]llvm.Value{zero, value(inst.Operand(1))}, "")
	case ir.OpLoad:
		st.vals[inst] = b.CreateLoad(pointer(inst.Operand(0)), "")
	case ir.OpStore:
		b.CreateStore(value(inst.Operand(1)), pointer(inst.Operand(0)))
	case ir.OpCast:
		src := value(inst.Operand(0))
		switch inst.CastKind() {
		case ir.CastIntToFloat:
			st.vals[inst] = b.CreateSIToFP(src, llvm.FloatType(), "")
		case ir.CastFloatToInt:
			st.vals[inst] = b.CreateFPToSI(src, llvm.Int32Type(), "")
		case ir.CastBoolToInt:
			st.vals[inst] = b.CreateZExt(src, llvm.Int32Type(), "")
		case ir.CastIntToBool:
			st.vals[inst] = b.CreateICmp(llvm.IntNE, src, llvm.ConstInt(llvm.Int32Type(), 0, true), "")
		}
	case ir.OpArg:
		// Argument markers only exist after calling convention lowering.
	default:
		return fmt.Errorf("cannot lower operator %d through LLVM", int(inst.Op()))
	}
	return nil
}
