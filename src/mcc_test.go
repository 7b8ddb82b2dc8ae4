package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mcc/src/backend"
	"mcc/src/frontend"
	"mcc/src/util"
)

// pipelineSrc exercises globals, calls, control flow and arrays end to end.
const pipelineSrc = `
global counter i32 bss
global seed i32 17
extern put ( i32 ) void

func fib ( n i32 ) i32 {
	t0 = le n, 1
	br t0, L1, L2
label L1
	ret n
label L2
	a = sub n, 1
	r1 = call fib ( a )
	b = sub n, 2
	r2 = call fib ( b )
	t1 = add r1, r2
	ret t1
}

func sumarr ( n i32 ) i32 {
	var arr [8 x i32]
	var s i32
	var i i32
	s = 0
	i = 0
label LHead
	t0 = lt i, n
	br t0, LBody, LEnd
label LBody
	p = gep arr, i
	t1 = load p
	t2 = add s, t1
	s = t2
	t3 = add i, 1
	i = t3
	goto LHead
label LEnd
	ret s
}
`

// helperCompileToFile parses and compiles the pipeline source with the given
// number of worker threads and returns the output assembler text.
func helperCompileToFile(t *testing.T, threads int) string {
	t.Helper()

	m, err := frontend.Parse(pipelineSrc)
	if err != nil {
		t.Fatalf("parse error: %s", err)
	}

	out := filepath.Join(t.TempDir(), "out.s")
	f, err := os.OpenFile(out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("could not create output file: %s", err)
	}

	opt := util.Options{
		Threads:    threads,
		TargetArch: util.Aarch64,
		Out:        out,
	}
	util.ListenWrite(opt.Threads, f)
	if err := backend.GenerateAssembler(opt, m); err != nil {
		t.Fatalf("code generation error: %s", err)
	}
	util.Close()

	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// TestPipeline compiles a whole module and checks the output structure.
func TestPipeline(t *testing.T) {
	out := helperCompileToFile(t, 1)

	for _, e1 := range []string{
		".macro rem dst, divd, divr",
		".comm counter, 4, 4",
		".word 0x11",
		".globl fib",
		".type fib, @function",
		"fib:",
		".globl sumarr",
		"sumarr:",
		"bl fib",
		"ret",
	} {
		if !strings.Contains(out, e1) {
			t.Errorf("missing %q in output:\n%s", e1, out)
		}
	}

	// The recursive function protects and restores the link register.
	if !strings.Contains(out, "stp x29, x30, [sp,#-16]!") {
		t.Error("fib does not protect FP and LR")
	}
	if !strings.Contains(out, "ldp x29, x30, [sp],#16") {
		t.Error("fib does not restore FP and LR")
	}

	// Labels are unique for the whole module.
	seen := map[string]bool{}
	for _, e1 := range strings.Split(out, "\n") {
		if strings.HasPrefix(e1, ".L") && strings.HasSuffix(e1, ":") {
			if seen[e1] {
				t.Errorf("duplicate label %s", e1)
			}
			seen[e1] = true
		}
	}
}

// TestParallelOutputMatchesSequential compiles the module with one and with
// four worker threads; the output must be byte identical.
func TestParallelOutputMatchesSequential(t *testing.T) {
	seq := helperCompileToFile(t, 1)
	par := helperCompileToFile(t, 4)
	if seq != par {
		t.Error("parallel code generation output differs from sequential output")
	}
}
