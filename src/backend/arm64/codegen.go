package arm64

import (
	"sort"
	"sync"

	"mcc/src/ir"
	"mcc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// CodeGenerator drives the per-function pass pipeline: register allocation,
// calling convention rewriting and instruction selection, serialised through an
// assembler buffer per function.
type CodeGenerator struct {
	m            *ir.Module
	showLinearIR bool // Emit the IR as comments in the output assembler.
}

// ---------------------
// ----- functions -----
// ---------------------

// NewCodeGenerator returns a code generator for module m. The integer constant
// zero is bound to the zero register for the generator's lifetime.
func NewCodeGenerator(m *ir.Module, showLinearIR bool) *CodeGenerator {
	ir.SetZeroReg(zrRegNo)
	return &CodeGenerator{
		m:            m,
		showLinearIR: showLinearIR,
	}
}

// Close unbinds the zero register.
func (g *CodeGenerator) Close() {
	ir.SetZeroReg(-1)
}

// GenHeader emits the assembler header: the rem macro expanding to sdiv and
// msub, used by the integer remainder lowering.
func (g *CodeGenerator) GenHeader(wr *util.Writer) {
	wr.WriteString(".macro rem dst, divd, divr\n" +
		"sdiv \\dst, \\divd, \\divr\n" +
		"msub \\dst, \\dst, \\divr, \\divd\n" +
		".endm\n")
}

// GenDataSection emits one record per global variable: uninitialised variables
// as a common symbol in BSS, initialised ones as a word in the data section.
func (g *CodeGenerator) GenDataSection(wr *util.Writer) {
	for _, e1 := range g.m.Globals() {
		if e1.InBSS() {
			wr.Write(".comm %s, %d, %d\n", e1.Name(), e1.Type().Size(), e1.Align())
		} else {
			wr.Write(".type %s, @object\n", e1.Name())
			wr.WriteString(".data\n")
			wr.Write(".globl %s\n", e1.Name())
			wr.WriteString(".align 2\n")
			wr.Write("%s:\n", e1.Name())
			wr.Write(".word 0x%x\n", uint32(e1.IntVal()))
		}
	}
}

// AssignLabels gives every label instruction of function fn a module unique
// name. Already named labels keep their name, so pre-assigning labels for a
// parallel run is idempotent.
func (g *CodeGenerator) AssignLabels(fn *ir.Function) {
	for _, e1 := range fn.Insts() {
		if e1.Op() == ir.OpLabel && e1.Name() == "" {
			e1.SetName(g.m.NextLabelName())
		}
	}
}

// GenCodeSection compiles function fn into the text section written to wr:
// locations are assigned, the instructions selected, dead labels removed and
// the buffer serialised under the function's symbol directives.
func (g *CodeGenerator) GenCodeSection(fn *ir.Function, wr *util.Writer) error {
	wr.WriteString(".text\n")

	g.registerAllocation(fn)

	// Label names must be unique for the whole program, not per function.
	g.AssignLabels(fn)

	il := newILoc()

	sel := newInstSelector(fn.Insts(), il, fn, newScratchAllocator(maxUsableRegNum))
	sel.showLinearIR = g.showLinearIR
	err := sel.run()

	il.deleteUsedLabel()

	wr.WriteString(".align 2\n")
	wr.Write(".globl %s\n", fn.Name())
	wr.Write(".type %s, @function\n", fn.Name())
	wr.Label(fn.Name())

	il.output(wr)
	return err
}

// registerAllocation assigns a location to every value of function fn and
// rewrites its call and parameter shape to the calling convention. The frame
// pointer is always protected, the link register when the function calls.
func (g *CodeGenerator) registerAllocation(fn *ir.Function) {
	// Builtin functions have no body to compile.
	if fn.Builtin() {
		return
	}

	fn.AddProtectedReg(fpRegNo)
	if fn.ExistFuncCall() {
		fn.AddProtectedReg(lrRegNo)
	}

	// 1. Compute the live ranges.
	ranges := calculateLiveRanges(fn)

	// 2. Sort by ascending start position.
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	// 3. Assign registers and stack slots.
	linearScanRegisterAllocation(ranges, fn)

	// 4. Lower the call sites.
	adjustFuncCallInsts(fn)

	// 5. Align the frame before binding stack passed parameters above it.
	fn.SetMaxDep((fn.MaxDep() + 15) &^ 15)

	adjustFormalParamInsts(fn)
}

// Generate compiles module m to aarch64 assembler on the module output writer.
// Functions are compiled in declaration order; with more than one worker thread
// the per-function buffers are produced in parallel and flushed in order, after
// label names have been pre-assigned sequentially.
func Generate(opt util.Options, m *ir.Module) error {
	g := NewCodeGenerator(m, opt.Verbose)
	defer g.Close()

	wr := util.NewWriter()
	defer wr.Close()

	g.GenHeader(&wr)
	g.GenDataSection(&wr)

	funcs := make([]*ir.Function, 0, len(m.Functions()))
	for _, e1 := range m.Functions() {
		if !e1.Builtin() {
			funcs = append(funcs, e1)
		}
	}

	if opt.Threads > 1 {
		// Parallel. Label names are handed out in declaration order first so
		// the output is identical to a sequential run.
		for _, e1 := range funcs {
			g.registerAllocation(e1)
			g.AssignLabels(e1)
		}

		t := opt.Threads
		l := len(funcs)
		if t > l {
			t = l
		}
		if t < 1 {
			t = 1
		}
		n := l / t
		res := l % t

		start := 0
		end := n

		outs := make([]util.Writer, l)
		perr := util.NewPerror(t)
		wg := sync.WaitGroup{}
		wg.Add(t)

		for i1 := 0; i1 < t; i1++ {
			if i1 < res {
				end++
			}

			// Spawn worker go routine.
			go func(start, end int, wg *sync.WaitGroup) {
				defer wg.Done()
				for i2 := start; i2 < end; i2++ {
					if err := g.genFunctionBody(funcs[i2], &outs[i2]); err != nil {
						perr.Append(err)
					}
				}
			}(start, end, &wg)

			start = end
			end += n
		}

		wg.Wait()

		// Flush the per-function buffers in declaration order.
		for i1 := range outs {
			wr.WriteString(outs[i1].String())
		}

		if perr.Len() > 0 {
			var first error
			for e1 := range perr.Errors() {
				first = e1
				break
			}
			perr.Stop()
			return first
		}
		perr.Stop()
		return nil
	}

	// Sequential.
	for _, e1 := range funcs {
		if err := g.GenCodeSection(e1, &wr); err != nil {
			return err
		}
	}
	return nil
}

// genFunctionBody compiles an already allocated function into writer wr. Used
// by the parallel path, where allocation and label assignment happened up
// front.
func (g *CodeGenerator) genFunctionBody(fn *ir.Function, wr *util.Writer) error {
	wr.WriteString(".text\n")

	il := newILoc()
	sel := newInstSelector(fn.Insts(), il, fn, newScratchAllocator(maxUsableRegNum))
	sel.showLinearIR = g.showLinearIR
	err := sel.run()

	il.deleteUsedLabel()

	wr.WriteString(".align 2\n")
	wr.Write(".globl %s\n", fn.Name())
	wr.Write(".type %s, @function\n", fn.Name())
	wr.Label(fn.Name())

	il.output(wr)
	return err
}
