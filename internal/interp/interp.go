// Package interp embeds the interpreter that executes submitted code.
//
// The language is Starlark, a Python dialect that can be evaluated inside a Go
// process. Every call to Exec builds a new thread and a new predeclared
// environment, so no binding survives from one call to the next. The same
// package backs the child process mode of the server binary (see Main), which
// is what the isolated executor launches by default.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Filename is the name evaluated code is reported under in tracebacks.
const Filename = "<string>"

const (
	// MainModule is the value of __name__ when code runs as a main program.
	MainModule = "__main__"
	// ExecModule is the value of __name__ for plain evaluation.
	ExecModule = "__exec__"
)

// mainGuard matches the conventional "run as main program" check. It is a
// textual heuristic, not a parse: the pattern also matches inside string
// literals and comments.
var mainGuard = regexp.MustCompile(`if\s+__name__\s*==\s*['"]__main__['"]`)

// HasMainGuard reports whether code appears to contain a main-program guard.
func HasMainGuard(code string) bool {
	return mainGuard.MatchString(code)
}

// fileOptions enables the Python-like statements Starlark leaves off by
// default, so scripts can use top-level if/for/while and rebind globals.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Config tunes a single evaluation.
type Config struct {
	// Module forces the value of __name__. Empty means MainModule when the
	// code carries a main guard and ExecModule otherwise.
	Module string
	// MaxSteps bounds the number of interpreter steps. Zero means no bound.
	MaxSteps uint64
}

// Exec evaluates code in a fresh namespace, writing everything the code
// prints to stdout. It returns the program's failure, if any; the caller
// decides how to present it (see Traceback).
//
// Cancelling ctx interrupts the evaluation at the next interpreter step.
func Exec(ctx context.Context, code string, stdout io.Writer, cfg Config) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	thread := &starlark.Thread{
		Name: "exec",
		Print: func(_ *starlark.Thread, msg string) {
			io.WriteString(stdout, msg+"\n")
		},
	}
	if cfg.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(cfg.MaxSteps)
	}

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()

	_, err = starlark.ExecFileOptions(fileOptions, thread, Filename, code, predeclared(code, cfg))
	return err
}

func predeclared(code string, cfg Config) starlark.StringDict {
	module := cfg.Module
	if module == "" {
		module = ExecModule
		if HasMainGuard(code) {
			module = MainModule
		}
	}
	return starlark.StringDict{
		"__name__": starlark.String(module),
		"json":     json.Module,
		"math":     math.Module,
	}
}

// Traceback renders a program failure the way an interpreter prints an
// uncaught error: the call stack followed by the message, newline terminated.
func Traceback(err error) string {
	if err == nil {
		return ""
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace() + "\n"
	}

	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) {
		var b strings.Builder
		for _, e := range resolveErrs {
			fmt.Fprintf(&b, "%s: %s\n", e.Pos, e.Msg)
		}
		return b.String()
	}

	return err.Error() + "\n"
}

// Message returns the short description of a program failure, without the
// call stack.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
