package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"sigil/internal/vm"
)

// Start reads lines from in and interprets each against one persistent VM,
// so globals and interned strings carry across lines. The banner and prompt
// only appear when talking to a terminal; piped input runs silently.
func Start(machine *vm.VM, in *os.File, out io.Writer) {
	interactive := isatty.IsTerminal(in.Fd())
	if interactive {
		fmt.Fprintln(out, "sigil repl | 'exit' or ctrl-d to quit")
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			if interactive {
				fmt.Fprintln(out)
			}
			break
		}
		line := scanner.Text()
		if line == "exit" {
			break
		}
		machine.Interpret(line)
	}
}
