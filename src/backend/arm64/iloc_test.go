package arm64

import (
	"strings"
	"testing"

	"mcc/src/ir"
	"mcc/src/util"
)

// TestLoadImm verifies the three materialisation shapes of 32-bit constants.
func TestLoadImm(t *testing.T) {
	tests := []struct {
		n    int32
		want []string
	}{
		{0, []string{"mov w8, wzr"}},
		{42, []string{"mov w8, #42"}},
		{-1, []string{"mov w8, #-1"}},
		{65536, []string{"mov w8, #65536"}},                       // Low half zero.
		{0x12345678, []string{"mov w8, #22136", "movk w8, #4660, lsl #16"}}, // All halves set.
	}
	for _, e1 := range tests {
		il := newILoc()
		il.loadImm(8, e1.n)
		lines := strings.Split(strings.TrimSpace(il.String()), "\n")
		if len(lines) != len(e1.want) {
			t.Errorf("loadImm(%d) emitted %d lines, want %d: %q", e1.n, len(lines), len(e1.want), lines)
			continue
		}
		for i1, e2 := range e1.want {
			if lines[i1] != e2 {
				t.Errorf("loadImm(%d) line %d = %q, want %q", e1.n, i1, lines[i1], e2)
			}
		}
	}
}

// TestLoadStoreBase verifies base+offset addressing, including offsets outside
// the displacement range.
func TestLoadStoreBase(t *testing.T) {
	il := newILoc()
	il.loadBase(8, fpRegNo, 0)
	il.loadBase(8, fpRegNo, 16)
	il.storeBase(8, spRegNo, 8, tmpRegNo)
	s := il.String()
	for _, e1 := range []string{"ldr w8, [x29]", "ldr w8, [x29,#16]", "str w8, [sp,#8]"} {
		if !strings.Contains(s, e1) {
			t.Errorf("missing %q in:\n%s", e1, s)
		}
	}

	il = newILoc()
	il.loadBase(8, fpRegNo, 8000)
	s = il.String()
	if !strings.Contains(s, "mov w8, #8000") || !strings.Contains(s, "ldr w8, [x29,w8]") {
		t.Errorf("out of range load displacement not synthesised:\n%s", s)
	}

	il = newILoc()
	il.storeBase(8, fpRegNo, 8000, tmpRegNo2)
	s = il.String()
	if !strings.Contains(s, "mov w17, #8000") || !strings.Contains(s, "str w8, [x29,w17]") {
		t.Errorf("out of range store displacement not routed through the scratch:\n%s", s)
	}
}

// TestLoadSymbol verifies page relative symbol addressing.
func TestLoadSymbol(t *testing.T) {
	il := newILoc()
	il.loadSymbol(8, "g")
	s := il.String()
	if !strings.Contains(s, "adrp x8, g") || !strings.Contains(s, "ldr w8, [x8,:lo12:g]") {
		t.Errorf("unexpected symbol load:\n%s", s)
	}
}

// TestLeaStack verifies stack address computation for encodable and large
// offsets.
func TestLeaStack(t *testing.T) {
	il := newILoc()
	il.leaStack(8, fpRegNo, 16)
	if !strings.Contains(il.String(), "add x8, x29, #16") {
		t.Errorf("unexpected lea:\n%s", il.String())
	}

	il = newILoc()
	il.leaStack(8, fpRegNo, 257)
	s := il.String()
	if !strings.Contains(s, "mov w8, #257") || !strings.Contains(s, "add x8, x29, x8") {
		t.Errorf("large lea offset not synthesised:\n%s", s)
	}
}

// TestDeleteUsedLabel verifies that labels no branch mentions die and that
// running the pass twice yields the same buffer as running it once.
func TestDeleteUsedLabel(t *testing.T) {
	il := newILoc()
	il.label(".L0")
	il.jump(".L1")
	il.label(".L1")
	il.label(".L2")
	il.branch("eq", ".L2")
	il.deleteUsedLabel()

	s := il.String()
	if strings.Contains(s, ".L0:") {
		t.Error("unreferenced label .L0 survived dead label elimination")
	}
	if !strings.Contains(s, ".L1:") || !strings.Contains(s, ".L2:") {
		t.Error("referenced label was deleted")
	}

	// Idempotence.
	il.deleteUsedLabel()
	if il.String() != s {
		t.Error("dead label elimination is not idempotent")
	}
}

// TestOutputIndentation verifies that labels are flushed left while
// instructions are indented one tab.
func TestOutputIndentation(t *testing.T) {
	il := newILoc()
	il.label(".L7")
	il.inst("ret")
	wr := util.Writer{}
	il.output(&wr)
	want := ".L7:\n\tret\n"
	if wr.String() != want {
		t.Errorf("output = %q, want %q", wr.String(), want)
	}
}

// TestAllocStack verifies frame allocation including the argument overflow area
// and immediate synthesis of large frames.
func TestAllocStack(t *testing.T) {
	m := ir.CreateModule("t")
	callee := m.CreateBuiltin("g", ir.TypeVoid, ir.TypeInt)

	fn := m.CreateFunction("f", ir.TypeVoid)
	fn.CreateCall(callee, []ir.Value{m.ConstInt(1)})
	fn.SetMaxDep(32)

	il := newILoc()
	il.allocStack(fn, tmpRegNo)
	s := il.String()
	if !strings.Contains(s, "sub sp, sp, #32") || !strings.Contains(s, "add x29, sp, #0") {
		t.Errorf("unexpected frame allocation:\n%s", s)
	}

	// Nine arguments leave one passed over the stack.
	args := make([]ir.Value, 9)
	for i1 := range args {
		args[i1] = m.ConstInt(int32(i1))
	}
	fn2 := m.CreateFunction("h", ir.TypeVoid)
	fn2.CreateCall(callee, args)
	fn2.SetMaxDep(16)

	il = newILoc()
	il.allocStack(fn2, tmpRegNo)
	s = il.String()
	if !strings.Contains(s, "sub sp, sp, #24") || !strings.Contains(s, "add x29, sp, #8") {
		t.Errorf("argument overflow area missing from frame:\n%s", s)
	}

	// A frame the immediate cannot encode goes through the scratch register.
	fn3 := m.CreateFunction("i", ir.TypeVoid)
	fn3.SetMaxDep(4112)
	il = newILoc()
	il.allocStack(fn3, tmpRegNo)
	s = il.String()
	if !strings.Contains(s, "mov w16, #4112") || !strings.Contains(s, "sub sp, sp, w16") {
		t.Errorf("large frame immediate not synthesised:\n%s", s)
	}
}
