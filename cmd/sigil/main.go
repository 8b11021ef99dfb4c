package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"sigil/internal/debugger"
	"sigil/internal/repl"
	"sigil/internal/vm"
)

const (
	exitUsage   = 64
	exitCompile = 65
	exitRuntime = 70
	exitFile    = 74
)

func main() {
	trace := flag.Bool("trace", envBool("SIGIL_TRACE"), "log each instruction and the value stack")
	logGC := flag.Bool("log-gc", envBool("SIGIL_GC_LOG"), "log garbage collection cycles")
	stressGC := flag.Bool("gc-stress", envBool("SIGIL_GC_STRESS"), "collect on every allocation")
	debug := flag.Bool("debug", false, "verbose diagnostics")
	flag.Usage = usage
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug || *trace || *logGC {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:     os.Stderr,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	}).Level(level).With().Timestamp().Logger()

	machine := vm.New(vm.Config{
		Trace:    *trace,
		LogGC:    *logGC,
		StressGC: *stressGC,
		Logger:   logger,
	})

	args := flag.Args()
	switch {
	case len(args) == 0:
		repl.Start(machine, os.Stdin, os.Stdout)
	case len(args) == 1:
		runFile(machine, args[0])
	case len(args) == 2 && args[0] == "disasm":
		disasmFile(machine, args[1])
	default:
		usage()
		os.Exit(exitUsage)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: sigil [options] [path]")
	fmt.Fprintln(os.Stderr, "       sigil [options] disasm <path>")
	flag.PrintDefaults()
}

func runFile(machine *vm.VM, path string) {
	source, err := readSource(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitFile)
	}
	switch machine.Interpret(source) {
	case vm.InterpretCompileError:
		os.Exit(exitCompile)
	case vm.InterpretRuntimeError:
		os.Exit(exitRuntime)
	}
}

func disasmFile(machine *vm.VM, path string) {
	source, err := readSource(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitFile)
	}
	fn := machine.Compile(source)
	if fn == nil {
		os.Exit(exitCompile)
	}
	fmt.Print(debugger.DisassembleFunction(fn))
}

func envBool(name string) bool {
	v := os.Getenv(name)
	return v != "" && v != "0" && v != "false"
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not read script %q", path)
	}
	return string(data), nil
}
