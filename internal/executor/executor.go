// Package executor defines the contract shared by every code execution
// backend: the request and result values, the construction options every
// backend must validate, and the invocation metadata callers attach to a call.
//
// Backends share the contract but not the language. The in-process and
// isolated backends, and the UnsafeLocal façade on either path, run the
// embedded Starlark interpreter (see package interp), so Python-only syntax
// such as `raise ValueError("x")` is a syntax error there and fail("x") is
// the equivalent. The docker backend runs its configured command, `python -c`
// by default, and therefore real Python. An isolated backend with an explicit
// Interpreter runs whatever language that binary accepts.
package executor

import (
	"context"
	"time"

	"github.com/sakif/codeexec/internal/apperror"
)

// ExecutionRequest carries the source code to run. The code is untrusted and
// may be empty.
type ExecutionRequest struct {
	Code string `json:"code"`
}

// File is an artifact produced by an execution. None of the backends in this
// module capture files; the slot is kept so results have a stable shape.
type File struct {
	Name     string `json:"name"`
	Content  []byte `json:"content"`
	MimeType string `json:"mimeType,omitempty"`
}

// ExecutionResult represents the output and status of the code execution.
//
// Failures of the executed program are reported here, as text in Stderr and a
// non-zero ExitCode, never as an error from Execute.
type ExecutionResult struct {
	Stdout      string        `json:"stdout"`
	Stderr      string        `json:"stderr"`
	OutputFiles []File        `json:"outputFiles"`
	ExitCode    int           `json:"exitCode"`
	TimedOut    bool          `json:"timedOut"`
	Duration    time.Duration `json:"duration"`
}

// Exit codes reported by the in-process backends, chosen to match what the
// child interpreter process exits with.
const (
	ExitOK           = 0
	ExitProgramError = 1
	ExitTimeout      = 124 // same as the unix timeout command
)

// Executor runs code and captures its output.
//
// Execute blocks until the code has finished. It returns an error only when
// the code could not be run at all (see apperror.ErrInfrastructure) or the
// caller's context was cancelled.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
	// Stateful reports whether definitions persist across calls.
	Stateful() bool
	// OptimizeDataFile reports whether large data inputs get special handling.
	OptimizeDataFile() bool
}

// Options are fixed per executor instance.
type Options struct {
	Stateful         bool `json:"stateful" yaml:"stateful"`
	OptimizeDataFile bool `json:"optimizeDataFile" yaml:"optimizeDataFile"`
}

// Validate rejects the options none of the backends in this module can
// honour: each call gets a fresh namespace or a fresh process, so nothing can
// persist between calls. Constructors call it before doing anything else.
func (o Options) Validate(executorName string) error {
	if o.Stateful {
		return apperror.InvalidConfiguration(executorName, "stateful")
	}
	if o.OptimizeDataFile {
		return apperror.InvalidConfiguration(executorName, "optimize_data_file")
	}
	return nil
}

// NewResult returns an empty result with a non-nil OutputFiles slice.
func NewResult() *ExecutionResult {
	return &ExecutionResult{OutputFiles: []File{}}
}
