package arm64

import "testing"

// TestConstExpr verifies the rotated 8-bit immediate predicate on values both
// encodable and not.
func TestConstExpr(t *testing.T) {
	tests := []struct {
		n    int32
		want bool
	}{
		{0, true},
		{1, true},
		{255, true},
		{256, true},    // 1 rotated.
		{1020, true},   // 255 << 2.
		{257, false},   // Needs nine significant bits.
		{-1, true},     // -(-1) = 1.
		{-255, true},
		{4096, true},   // 1 << 12.
		{0x12345678, false},
	}
	for _, e1 := range tests {
		if got := constExpr(e1.n); got != e1.want {
			t.Errorf("constExpr(%d) = %v, want %v", e1.n, got, e1.want)
		}
	}
}

// TestIsDisp verifies the displacement boundaries for base+offset addressing.
func TestIsDisp(t *testing.T) {
	tests := []struct {
		n    int64
		want bool
	}{
		{0, true},
		{4095, true},
		{-4095, true},
		{4096, false},
		{-4096, false},
	}
	for _, e1 := range tests {
		if got := isDisp(e1.n); got != e1.want {
			t.Errorf("isDisp(%d) = %v, want %v", e1.n, got, e1.want)
		}
	}
}

// TestCalleeSave verifies the protected register predicate range.
func TestCalleeSave(t *testing.T) {
	for no := int32(0); no <= 32; no++ {
		want := no >= 19 && no <= 28
		if got := calleeSave(no); got != want {
			t.Errorf("calleeSave(%d) = %v, want %v", no, got, want)
		}
	}
}

// TestRegNames spot checks the register name table.
func TestRegNames(t *testing.T) {
	tests := []struct {
		no   int32
		want string
	}{
		{0, "w0"},
		{8, "w8"},
		{28, "w28"},
		{fpRegNo, "x29"},
		{lrRegNo, "x30"},
		{spRegNo, "sp"},
		{zrRegNo, "wzr"},
	}
	for _, e1 := range tests {
		if regName[e1.no] != e1.want {
			t.Errorf("regName[%d] = %s, want %s", e1.no, regName[e1.no], e1.want)
		}
	}
	if xreg(fpRegNo) != "x29" || xreg(lrRegNo) != "x30" || xreg(19) != "x19" || xreg(spRegNo) != "sp" {
		t.Error("xreg returned an unexpected 64-bit register name")
	}
}
