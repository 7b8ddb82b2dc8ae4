package ir

import (
	"strings"
	"testing"
)

// TestTypeSizes verifies the storage sizes of the type system.
func TestTypeSizes(t *testing.T) {
	tests := []struct {
		typ  Type
		want int32
	}{
		{TypeVoid, 0},
		{TypeInt, 4},
		{TypeBool, 1},
		{TypeFloat, 4},
		{GetArrayType(TypeInt, 10), 40},
		{GetArrayType(GetArrayType(TypeInt, 3), 4), 48},
		{GetArrayType(GetArrayType(TypeBool, 6), 10), 60},
	}
	for _, e1 := range tests {
		if got := e1.typ.Size(); got != e1.want {
			t.Errorf("%s size = %d, want %d", e1.typ.String(), got, e1.want)
		}
	}
}

// TestArrayTypeInterning asserts equal array types share one instance.
func TestArrayTypeInterning(t *testing.T) {
	a := GetArrayType(TypeInt, 8)
	b := GetArrayType(TypeInt, 8)
	if a != b {
		t.Error("equal array types are not interned")
	}
	if a == GetArrayType(TypeInt, 9) {
		t.Error("different lengths share one type")
	}
	nested := GetArrayType(a, 2)
	if nested.BaseElementType() != TypeInt {
		t.Error("base element type of a nested array is not the innermost type")
	}
	if nested.String() != "[2 x [8 x i32]]" {
		t.Errorf("unexpected type identifier: %s", nested.String())
	}
}

// TestConstInterning asserts module constants are interned by value.
func TestConstInterning(t *testing.T) {
	m := CreateModule("t")
	if m.ConstInt(5) != m.ConstInt(5) {
		t.Error("equal integer constants are not interned")
	}
	if m.ConstInt(5) == m.ConstInt(6) {
		t.Error("different integer constants share one instance")
	}
	if m.ConstFloat(1.5) != m.ConstFloat(1.5) {
		t.Error("equal floating point constants are not interned")
	}
}

// TestZeroRegisterBinding asserts the constant zero reports the bound zero
// register and nothing else does.
func TestZeroRegisterBinding(t *testing.T) {
	m := CreateModule("t")
	zero := m.ConstInt(0)
	one := m.ConstInt(1)
	if zero.RegId() != -1 {
		t.Error("constant 0 reports a register while unbound")
	}
	SetZeroReg(32)
	if zero.RegId() != 32 {
		t.Error("constant 0 does not report the bound zero register")
	}
	if one.RegId() != -1 {
		t.Error("constant 1 reports the zero register")
	}
	SetZeroReg(-1)
	if zero.RegId() != -1 {
		t.Error("unbinding the zero register did not take effect")
	}
}

// TestFunctionBuilder verifies the instruction bracketing and call site
// statistics of the builder.
func TestFunctionBuilder(t *testing.T) {
	m := CreateModule("t")
	callee := m.CreateBuiltin("g", TypeVoid, TypeInt, TypeInt, TypeInt)

	fn := m.CreateFunction("f", TypeInt)
	a := fn.AddParam("%a", TypeInt)
	fn.CreateCall(callee, []Value{a, m.ConstInt(1), m.ConstInt(2)})
	fn.CreateMove(fn.RetVal(), a)
	fn.Finish()

	insts := fn.Insts()
	if insts[0].Op() != OpEntry || insts[len(insts)-1].Op() != OpExit {
		t.Error("entry/exit bracketing is broken")
	}
	if !fn.ExistFuncCall() || fn.MaxCallArgCnt() != 3 {
		t.Error("call site statistics not updated")
	}
	if fn.Insts()[len(insts)-1].Operand(0) != Value(fn.RetVal()) {
		t.Error("exit does not carry the return value")
	}
}

// TestProtectedRegSet verifies deduplicating insertion and erasure.
func TestProtectedRegSet(t *testing.T) {
	m := CreateModule("t")
	fn := m.CreateFunction("f", TypeVoid)
	fn.AddProtectedReg(29)
	fn.AddProtectedReg(19)
	fn.AddProtectedReg(19)
	if len(fn.ProtectedRegs()) != 2 {
		t.Errorf("protected set = %v, want two entries", fn.ProtectedRegs())
	}
	fn.RemoveProtectedReg(19)
	if len(fn.ProtectedRegs()) != 1 || fn.ProtectedRegs()[0] != 29 {
		t.Errorf("erase failed: %v", fn.ProtectedRegs())
	}
	// Erasing an absent register is a no-op.
	fn.RemoveProtectedReg(23)
	if len(fn.ProtectedRegs()) != 1 {
		t.Error("erasing an absent register changed the set")
	}
}

// TestLabelNames asserts module label names are unique and monotonic.
func TestLabelNames(t *testing.T) {
	m := CreateModule("t")
	if m.NextLabelName() != ".L0" || m.NextLabelName() != ".L1" {
		t.Error("label counter is not monotonic from zero")
	}
}

// TestInstructionString spot checks the IR text renderings.
func TestInstructionString(t *testing.T) {
	m := CreateModule("t")
	fn := m.CreateFunction("f", TypeInt)
	a := fn.AddParam("%a", TypeInt)
	add := fn.CreateBinary(OpIAdd, a, m.ConstInt(3), TypeInt)
	if got := add.String(); got != "%t0 = add %a,3" {
		t.Errorf("add renders as %q", got)
	}
	cmp := fn.CreateBinary(OpILt, add, m.ConstInt(0), TypeBool)
	if !strings.Contains(cmp.String(), "icmp lt") {
		t.Errorf("comparison renders as %q", cmp.String())
	}
	l1 := fn.NewLabel()
	l1.SetName(".L0")
	g := fn.CreateCondGoto(cmp, l1, fn.ExitLabel())
	fn.ExitLabel().SetName(".L1")
	if got := g.String(); got != "br %t1, label .L0, label .L1" {
		t.Errorf("branch renders as %q", got)
	}
}
