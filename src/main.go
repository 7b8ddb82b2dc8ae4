package main

import (
	"fmt"
	"os"

	"mcc/src/backend"
	"mcc/src/frontend"
	"mcc/src/ir/llvm"
	"mcc/src/util"
)

func main() {
	// Parse command line arguments.
	opt, err := util.ParseArgs()
	if err != nil {
		fmt.Printf("Command line argument error: %s\n", err)
		os.Exit(1)
	}

	// Read linear IR source code.
	src, err := util.ReadSource(opt)
	if err != nil {
		fmt.Printf("Could not read source code: %s\n", err)
		os.Exit(1)
	}

	// Build the IR module.
	m, err := frontend.Parse(src)
	if err != nil {
		fmt.Printf("Parse error: %s\n", err)
		os.Exit(1)
	}

	// Lower through the system LLVM runtime, if the flag was passed.
	if opt.LLVM {
		if err := llvm.GenLLVM(opt, m); err != nil {
			fmt.Printf("Error reported by LLVM: %s\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initiate output writer.
	if len(opt.Out) > 0 {
		// Attempt to open output file. Create new file if necessary.
		f, err := os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer func(f *os.File) {
			if err := f.Close(); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		}(f)
		util.ListenWrite(opt.Threads, f)
	} else {
		// Write results to stdout.
		util.ListenWrite(opt.Threads, nil)
	}

	// Generate assembler.
	if err := backend.GenerateAssembler(opt, m); err != nil {
		fmt.Printf("Code generation error: %s\n", err)
		util.Close()
		os.Exit(1)
	}

	// Stop the output writer.
	util.Close()
}
