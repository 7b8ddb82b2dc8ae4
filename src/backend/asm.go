// Package backend dispatches code generation to the requested target
// architecture.
package backend

import (
	"errors"

	"mcc/src/backend/arm64"
	"mcc/src/ir"
	"mcc/src/util"
)

// ---------------------
// ----- Functions -----
// ---------------------

// GenerateAssembler takes the IR module and generates output assembler code for
// the architecture defined by opt.
func GenerateAssembler(opt util.Options, m *ir.Module) error {
	switch opt.TargetArch {
	case util.Aarch64:
		return arm64.Generate(opt, m)
	case util.Riscv64:
		return errors.New("RISC-V 64-bit not supported yet")
	default:
		return errors.New("unsupported output architecture")
	}
}
