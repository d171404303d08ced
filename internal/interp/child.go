package interp

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Exit codes of the child interpreter process.
const (
	ExitOK           = 0
	ExitProgramError = 1
	ExitUsage        = 2
)

// ProgramFlag introduces an inline program, as in `python -c <source>`.
const ProgramFlag = "-c"

// IsChildInvocation reports whether a process started with args (os.Args)
// was launched as a child interpreter rather than as a server.
func IsChildInvocation(args []string) bool {
	return len(args) >= 3 && args[1] == ProgramFlag
}

// Main runs the interpreter as a short-lived child process would: args are
// the process arguments without the program name, starting with "-c".
// Output goes to stdout, a traceback to stderr on failure. The returned
// value is the process exit code.
//
// Like any `-c` program, the code always runs with __name__ == "__main__".
func Main(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 || args[0] != ProgramFlag {
		fmt.Fprintf(stderr, "usage: %s <source>\n", ProgramFlag)
		return ExitUsage
	}

	out := bufio.NewWriter(stdout)
	err := Exec(context.Background(), args[1], out, Config{Module: MainModule})
	if flushErr := out.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		io.WriteString(stderr, Traceback(err))
		return ExitProgramError
	}
	return ExitOK
}
