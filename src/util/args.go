package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Options holds the compiler configuration assembled from command line arguments.
type Options struct {
	Src        string // Path to linear IR source file.
	Out        string // Path to output assembler file.
	Threads    int    // Worker go routine count for per-function code generation.
	Verbose    bool   // Set true if the compiler should emit the IR as comments in the output assembler.
	LLVM       bool   // Set true if the compiler should lower the IR through the LLVM framework.
	TargetArch int    // Output target architecture.
}

// ---------------------
// ----- Constants -----
// ---------------------

const maxThreads = 64 // Maximum threads allowed executing in parallel.
const appVersion = "mcc compiler 1.0"

// Target machine architectures.
const (
	UnknownArch = iota
	Aarch64
	Riscv64
)

// ---------------------
// ----- functions -----
// ---------------------

// ParseArgs parses command line arguments into an Options structure. The last
// argument that is not consumed by a flag is taken as the source file path.
func ParseArgs() (Options, error) {
	opt := Options{
		Threads:    1,
		TargetArch: Aarch64,
	}
	if len(os.Args) < 2 {
		return opt, nil
	}
	args := os.Args[1:]
	for i1 := 0; i1 < len(args)-1; i1++ {
		switch args[i1] {
		case "-h", "--h", "-help", "--help":
			// Help and usage.
			printHelp()
			os.Exit(0)
		case "-ll":
			// Lower through the LLVM framework instead of the native backend.
			opt.LLVM = true
		case "-o", "-t":
			if i1+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i1])
			}
			if strings.HasPrefix(args[i1+1], "-") {
				return opt, fmt.Errorf("expected argument for flag %s, got new flag %s", args[i1], args[i1+1])
			}
			switch args[i1] {
			case "-o":
				// Output file.
				opt.Out = args[i1+1]
			case "-t":
				// Thread count.
				if t, err := strconv.Atoi(args[i1+1]); err == nil {
					if t > 0 && t <= maxThreads {
						opt.Threads = t
					} else {
						return opt, fmt.Errorf("thread count must be integer in range [1, %d]", maxThreads)
					}
				} else {
					return opt, fmt.Errorf("expected integer thread count, got: %s", args[i1+1])
				}
			}
			i1++
		case "-arch":
			// Output architecture.
			if i1+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i1])
			}
			switch args[i1+1] {
			case "aarch64":
				opt.TargetArch = Aarch64
			case "riscv64":
				opt.TargetArch = Riscv64
			default:
				return opt, fmt.Errorf("unexpected architecture identifier: %s", args[i1+1])
			}
			i1++
		case "-v", "--v", "-version", "--version":
			// Application version.
			fmt.Println(appVersion)
			os.Exit(0)
		case "-vb":
			// Verbose mode.
			opt.Verbose = true
		default:
			return opt, fmt.Errorf("unexpected flag: %s", args[i1])
		}
	}
	if len(args) > 0 {
		opt.Src = args[len(args)-1]
	}
	return opt, nil
}

// printHelp prints a helpful usage message to stdout.
func printHelp() {
	w := tabwriter.NewWriter(os.Stdout, 6, 1, 1, 0, 0)
	_, _ = fmt.Fprintln(w, "-h, -help\tPrints this help message and exits the application.")
	_, _ = fmt.Fprintln(w, "--h, --help")
	_, _ = fmt.Fprintln(w, "-ll\tLower the IR through the system LLVM runtime instead of the native backend.")
	_, _ = fmt.Fprintln(w, "-o\tPath and name of the output file.")
	_, _ = fmt.Fprintf(w, "-t\tNumber of threads to run in parallel. Must be in range [1, %d].\n", maxThreads)
	_, _ = fmt.Fprintln(w, "-arch\tOutput architecture type. Can be either 'aarch64' or 'riscv64'. Defaults to 'aarch64'.")
	_, _ = fmt.Fprintln(w, "-v, -version\tPrints application version and exits the application.")
	_, _ = fmt.Fprintln(w, "-vb\tVerbose mode: emit the IR as comments in the output assembler.")
	_ = w.Flush()
}
