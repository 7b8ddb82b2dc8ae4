// Package arm64 generates aarch64 assembler from the linear IR: liveness
// analysis and linear scan register allocation, calling convention rewriting,
// and pattern directed instruction selection over an ILOC line buffer.
package arm64

import (
	"strconv"

	"mcc/src/ir"
)

// ---------------------
// ----- Constants -----
// ---------------------

// Reserved registers of the aarch64 port.
const (
	tmpRegNo  = 16 // First emitter scratch register, never touched by the allocator.
	tmpRegNo2 = 17 // Second emitter scratch register.
	fpRegNo   = 29 // Frame pointer.
	lrRegNo   = 30 // Link register.
	spRegNo   = 31 // Stack pointer.
	zrRegNo   = 32 // Zero register.
)

// maxRegNum is the number of addressable general purpose registers.
const maxRegNum = 32

// maxUsableRegNum bounds the registers handed out by the scratch allocator.
const maxUsableRegNum = 16

// -------------------
// ----- globals -----
// -------------------

// regName holds the assembler names of the general purpose registers. Indices
// 0-28 use the 32-bit w form; the frame pointer, link register and stack
// pointer are only ever addressed as 64-bit.
var regName = [maxRegNum + 1]string{
	"w0", // Arguments and return value.
	"w1",
	"w2",
	"w3",
	"w4",
	"w5",
	"w6",
	"w7",
	"w8", // Temporaries.
	"w9",
	"w10",
	"w11",
	"w12",
	"w13",
	"w14",
	"w15",
	"w16", // Reserved emitter scratches.
	"w17",
	"w18", // Platform register, not used.
	"w19", // Callee saved.
	"w20",
	"w21",
	"w22",
	"w23",
	"w24",
	"w25",
	"w26",
	"w27",
	"w28",
	"x29", // Frame pointer.
	"x30", // Link register.
	"sp",
	"wzr",
}

// regVal interns one register pinned Value per argument register, used by the
// calling convention rewriter when redirecting call operands.
var regVal = func() [maxRegNum]*ir.RegVariable {
	var r [maxRegNum]*ir.RegVariable
	for i1 := 0; i1 < maxRegNum; i1++ {
		r[i1] = ir.NewRegVariable(ir.TypeInt, regName[i1], int32(i1))
	}
	return r
}()

// ---------------------
// ----- functions -----
// ---------------------

// calleeSave reports whether register no is callee saved and must appear in the
// function's protected set when the allocator assigns it.
func calleeSave(no int32) bool {
	return no >= 19 && no <= 28
}

// roundLeftShiftTwoBit rotates num left by two bits.
func roundLeftShiftTwoBit(num uint32) uint32 {
	overflow := num & 0xc0000000
	return (num << 2) | (overflow >> 30)
}

// rotatedImm8 reports whether num can be produced by rotating an 8-bit constant
// right by an even amount.
func rotatedImm8(num int32) bool {
	n := uint32(num)
	for i1 := 0; i1 < 16; i1++ {
		if n <= 0xff {
			return true
		}
		n = roundLeftShiftTwoBit(n)
	}
	return false
}

// constExpr reports whether num or -num is encodable as a rotated 8-bit
// immediate, handling both positive and negative values.
func constExpr(num int32) bool {
	return rotatedImm8(num) || rotatedImm8(-num)
}

// isDisp reports whether num is a valid base+offset displacement for ldr/str.
func isDisp(num int64) bool {
	return num < 4096 && num > -4096
}

// xreg returns the 64-bit assembler name of register no.
func xreg(no int32) string {
	switch no {
	case fpRegNo:
		return "x29"
	case lrRegNo:
		return "x30"
	case spRegNo:
		return "sp"
	}
	return "x" + strconv.Itoa(int(no))
}
