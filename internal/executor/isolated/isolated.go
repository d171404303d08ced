// Package isolated implements the child-process executor.
//
// Every call launches a fresh interpreter process with the source passed
// inline (`<interpreter> -c <source>`), waits for it and returns what it
// wrote. Nothing defined in one call is visible to the next because nothing
// outlives the process. The child still runs as the same user, with the same
// filesystem and network access, as the host.
package isolated

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/sakif/codeexec/internal/apperror"
	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/interp"
)

// Name identifies this backend in errors and logs.
const Name = "IsolatedExecutor"

const (
	DefaultTimeout   = 30 * time.Second
	DefaultWaitDelay = 2 * time.Second
)

// Config holds the configuration for child-process execution.
type Config struct {
	executor.Options
	// Interpreter is the runtime binary. Empty means the host executable,
	// which runs the embedded interpreter when invoked with -c.
	Interpreter string
	// Args are passed before "-c <source>".
	Args []string
	// Env is appended to the inherited host environment.
	Env []string
	// Dir is the working directory. Empty means the host's.
	Dir string
	// Timeout bounds how long the child may run before it is killed.
	Timeout time.Duration
	// WaitDelay bounds how long to wait for output pipes after the child exits or is killed.
	WaitDelay time.Duration
}

// Executor implements executor.Executor with one child process per call.
type Executor struct {
	config      Config
	interpreter string
	logger      *slog.Logger
}

var _ executor.Executor = (*Executor)(nil)

// New validates cfg and resolves the interpreter binary.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if err := cfg.Options.Validate(Name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}

	interpreter := cfg.Interpreter
	if interpreter == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, apperror.Infrastructure(Name, fmt.Errorf("locating host executable: %w", err))
		}
		interpreter = self
	}

	return &Executor{
		config:      cfg,
		interpreter: interpreter,
		logger:      logger,
	}, nil
}

func (e *Executor) Stateful() bool         { return false }
func (e *Executor) OptimizeDataFile() bool { return false }

// Interpreter returns the binary every call launches.
func (e *Executor) Interpreter() string { return e.interpreter }

// Execute runs the request's code in a new child process.
//
// A program that fails inside the child is not an error: its exit status
// goes to ExitCode and whatever it printed to Stderr. Output pipes held open
// by processes the program left behind are closed after WaitDelay and the
// output captured so far is returned. Failing to start or reap the child is
// reported as apperror.ErrInfrastructure.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	e.logger.Debug("executing code in isolated process",
		slog.String("interpreter", e.interpreter),
		slog.String("code", "\n```\n"+req.Code+"\n```"),
	)

	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	args := make([]string, 0, len(e.config.Args)+2)
	args = append(args, e.config.Args...)
	args = append(args, interp.ProgramFlag, req.Code)

	cmd := exec.CommandContext(runCtx, e.interpreter, args...)
	cmd.Dir = e.config.Dir
	cmd.WaitDelay = e.config.WaitDelay
	if len(e.config.Env) > 0 {
		cmd.Env = append(os.Environ(), e.config.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, apperror.Infrastructure(Name, fmt.Errorf("starting %s: %w", e.interpreter, err))
	}
	waitErr := cmd.Wait()

	result := executor.NewResult()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Duration = time.Since(start)
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	// A child that exited on its own before the deadline was not timed out,
	// even if the deadline passed while its pipes were draining.
	killed := cmd.ProcessState == nil || !cmd.ProcessState.Exited()
	if runCtx.Err() != nil && killed {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ctxErr
		}
		e.logger.Warn("isolated process timed out",
			slog.String("interpreter", e.interpreter),
			slog.Duration("timeout", e.config.Timeout),
		)
		result.TimedOut = true
		result.ExitCode = executor.ExitTimeout
		result.Stderr += "\nExecution timed out.\n"
		return result, nil
	}

	// Something the program left running still held stdout or stderr. The
	// program itself finished; keep what it wrote before the pipes closed.
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		e.logger.Warn("isolated process left output pipes open",
			slog.String("interpreter", e.interpreter),
			slog.Duration("waitDelay", e.config.WaitDelay),
		)
		return result, nil
	}

	// Exited cleanly after the kill was sent; Wait reports the context error.
	if errors.Is(waitErr, context.DeadlineExceeded) || errors.Is(waitErr, context.Canceled) {
		return result, nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, apperror.Infrastructure(Name, fmt.Errorf("waiting for %s: %w", e.interpreter, waitErr))
	}

	return result, nil
}
