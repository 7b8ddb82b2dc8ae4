package arm64

import (
	"testing"

	"mcc/src/frontend"
	"mcc/src/ir"
)

// TestLeafParamBinding asserts that the parameters of a function without calls
// are bound directly to the argument registers and no moves are inserted.
func TestLeafParamBinding(t *testing.T) {
	m := helperAllocate(t, `
func leaf ( a i32 , b i32 ) i32 {
	t = add a, b
	ret t
}
`)
	fn := m.GetFunction("leaf")
	for i1, e1 := range fn.Params() {
		if e1.RegId() != int32(i1) {
			t.Errorf("parameter %d bound to register %d", i1, e1.RegId())
		}
	}
	for _, e1 := range fn.ProtectedRegs() {
		if calleeSave(e1) {
			t.Errorf("leaf function protects callee saved register %d", e1)
		}
	}
	if fn.Insts()[1].Op() == ir.OpAssign {
		t.Error("leaf function received parameter moves")
	}
}

// TestCallingParamBinding asserts that a calling function copies its incoming
// parameters out of the argument registers right after entry.
func TestCallingParamBinding(t *testing.T) {
	m := helperAllocate(t, `
extern put ( i32 ) void
func f ( a i32 , b i32 ) i32 {
	call put ( a )
	ret b
}
`)
	fn := m.GetFunction("f")
	insts := fn.Insts()
	if insts[0].Op() != ir.OpEntry {
		t.Fatal("first instruction is not the entry")
	}
	for i1 := 0; i1 < len(fn.Params()); i1++ {
		mv := insts[1+i1]
		if mv.Op() != ir.OpAssign {
			t.Fatalf("instruction %d is not a parameter move", 1+i1)
		}
		if mv.Operand(0) != ir.Value(fn.Params()[i1]) {
			t.Errorf("move %d does not target parameter %d", i1, i1)
		}
		if mv.Operand(1).RegId() != int32(i1) {
			t.Errorf("move %d does not read argument register %d", i1, i1)
		}
	}
}

// TestStackParamBinding asserts that parameters beyond the eighth live at
// positive offsets above the frame, growing in 4 byte steps.
func TestStackParamBinding(t *testing.T) {
	m := helperAllocate(t, `
func f ( p0 i32 , p1 i32 , p2 i32 , p3 i32 , p4 i32 , p5 i32 , p6 i32 , p7 i32 , p8 i32 , p9 i32 ) i32 {
	t = add p8, p9
	ret t
}
`)
	fn := m.GetFunction("f")
	var offs [2]int64
	for i1 := 8; i1 < 10; i1++ {
		p := fn.Params()[i1]
		b, off, ok := p.MemoryAddr()
		if !ok || b != fpRegNo {
			t.Fatalf("parameter %d is not FP addressed", i1)
		}
		if off < int64(fn.MaxDep()) {
			t.Errorf("parameter %d bound below the frame at offset %d", i1, off)
		}
		offs[i1-8] = off
		if p.RegId() != -1 {
			t.Errorf("stack passed parameter %d still holds register %d", i1, p.RegId())
		}
	}
	if offs[1]-offs[0] != 4 {
		t.Errorf("stack parameters are %d bytes apart, want 4", offs[1]-offs[0])
	}
}

// TestCallSiteLowering asserts the rewritten shape of a nine argument call:
// stack argument locals, argument register operands, one marker per operand and
// the result move after the call.
func TestCallSiteLowering(t *testing.T) {
	m, err := frontend.Parse(`
extern g ( i32 , i32 , i32 , i32 , i32 , i32 , i32 , i32 , i32 ) i32
func f ( ) i32 {
	t = call g ( 1 , 2 , 3 , 4 , 5 , 6 , 7 , 8 , 9 )
	ret t
}
`)
	if err != nil {
		t.Fatal(err)
	}
	gen := NewCodeGenerator(m, false)
	defer gen.Close()
	fn := m.GetFunction("f")
	gen.registerAllocation(fn)

	var call *ir.Instruction
	callPos := -1
	for i1, e1 := range fn.Insts() {
		if e1.Op() == ir.OpFuncCall {
			call, callPos = e1, i1
		}
	}
	if call == nil {
		t.Fatal("call instruction lost during rewriting")
	}

	// Register arguments sit in their argument registers.
	for k := 0; k < 8; k++ {
		if call.Operand(k).RegId() != int32(k) {
			t.Errorf("operand %d is in register %d", k, call.Operand(k).RegId())
		}
	}

	// The ninth operand is a fresh SP addressed local.
	b, off, ok := call.Operand(8).MemoryAddr()
	if !ok || b != spRegNo || off != 0 {
		t.Errorf("operand 8 is not addressed at [sp, #0]")
	}

	// One argument marker per operand directly precedes the call.
	insts := fn.Insts()
	for k := 0; k < call.OperandsNum(); k++ {
		arg := insts[callPos-call.OperandsNum()+k]
		if arg.Op() != ir.OpArg {
			t.Fatalf("expected argument marker at %d", callPos-call.OperandsNum()+k)
		}
		if arg.Operand(0) != call.Operand(k) {
			t.Errorf("marker %d does not carry call operand %d", k, k)
		}
	}

	// The result leaves w0 for its assigned register after the call.
	if call.RegId() != 0 {
		mv := insts[callPos+1]
		if mv.Op() != ir.OpAssign || mv.Operand(0) != ir.Value(call) || mv.Operand(1).RegId() != 0 {
			t.Error("missing result move after the call")
		}
	}
}

// TestCallResultInW0NeedsNoMove asserts no result move is inserted when the
// call result was allocated w0 itself.
func TestCallResultInW0NeedsNoMove(t *testing.T) {
	m := ir.CreateModule("t")
	callee := m.CreateBuiltin("g", ir.TypeInt)
	fn := m.CreateFunction("f", ir.TypeInt)
	call := fn.CreateCall(callee, nil)
	fn.CreateMove(fn.RetVal(), call)
	fn.Finish()

	call.SetRegId(0)
	adjustFuncCallInsts(fn)

	for i1, e1 := range fn.Insts() {
		if e1.Op() != ir.OpFuncCall {
			continue
		}
		next := fn.Insts()[i1+1]
		if next.Op() == ir.OpAssign && next.Operand(0) == ir.Value(e1) {
			t.Error("result move inserted although the result sits in w0")
		}
	}
}
